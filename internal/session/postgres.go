package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the jackc/pgx-backed Store implementation. It issues
// SQL directly against pgxpool rather than going through a generated
// query layer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (
			id, user_id, token_family, access_token_jti, refresh_token_jti,
			ip_address, ip_hash, user_agent, user_agent_hash,
			device_fingerprint, geolocation, risk_score, is_active,
			last_activity_at, expires_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		s.ID, s.UserID, s.TokenFamily, s.AccessTokenJTI, s.RefreshTokenJTI,
		s.IPAddress, s.IPHash, s.UserAgent, s.UserAgentHash,
		s.DeviceFingerprint, s.Geolocation, s.RiskScore, s.IsActive,
		s.LastActivityAt, s.ExpiresAt, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

const selectColumns = `
	id, user_id, token_family, access_token_jti, refresh_token_jti,
	ip_address, ip_hash, user_agent, user_agent_hash,
	device_fingerprint, geolocation, risk_score, is_active,
	last_activity_at, expires_at, revoked_at, revoked_reason,
	created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var revokedAt pgtype.Timestamptz
	var revokedReason pgtype.Text
	err := row.Scan(
		&s.ID, &s.UserID, &s.TokenFamily, &s.AccessTokenJTI, &s.RefreshTokenJTI,
		&s.IPAddress, &s.IPHash, &s.UserAgent, &s.UserAgentHash,
		&s.DeviceFingerprint, &s.Geolocation, &s.RiskScore, &s.IsActive,
		&s.LastActivityAt, &s.ExpiresAt, &revokedAt, &revokedReason,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	s.RevokedReason = revokedReason.String
	return &s, nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *PostgresStore) FindByAccessTokenJTI(ctx context.Context, jti string) (*Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions
		WHERE access_token_jti = $1 AND is_active = true AND revoked_at IS NULL AND expires_at > now()`, jti)
	return scanSession(row)
}

func (p *PostgresStore) FindByRefreshTokenJTI(ctx context.Context, jti string) (*Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions WHERE refresh_token_jti = $1`, jti)
	return scanSession(row)
}

func (p *PostgresStore) FindActiveByUserID(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+selectColumns+` FROM sessions
		WHERE user_id = $1 AND is_active = true AND revoked_at IS NULL AND expires_at > now()`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateLastActivity(ctx context.Context, sessionID string, when time.Time) error {
	_, err := p.pool.Exec(ctx, `UPDATE sessions SET last_activity_at = $2, updated_at = $2 WHERE id = $1`, sessionID, when)
	return err
}

func (p *PostgresStore) UpdateRiskScore(ctx context.Context, sessionID string, score int) error {
	_, err := p.pool.Exec(ctx, `UPDATE sessions SET risk_score = $2, updated_at = now() WHERE id = $1`, sessionID, score)
	return err
}

func (p *PostgresStore) UpdateJTIs(ctx context.Context, sessionID, accessJTI, refreshJTI string) error {
	_, err := p.pool.Exec(ctx, `UPDATE sessions SET access_token_jti = $2, refresh_token_jti = $3, updated_at = now() WHERE id = $1`,
		sessionID, accessJTI, refreshJTI)
	return err
}

// RevokeSession is idempotent via the revoked_at IS NULL guard: a second
// call matches zero rows and returns nil.
func (p *PostgresStore) RevokeSession(ctx context.Context, sessionID, reason string) error {
	_, err := p.pool.Exec(ctx, `UPDATE sessions SET is_active = false, revoked_at = now(), revoked_reason = $2, updated_at = now()
		WHERE id = $1 AND revoked_at IS NULL`, sessionID, reason)
	return err
}

// TryRevokeSession is the conditional UPDATE ... WHERE revoked_at IS NULL
// serialization point: pgx reports RowsAffected, telling the caller
// whether it won the race against a concurrent refresh.
func (p *PostgresStore) TryRevokeSession(ctx context.Context, sessionID, reason string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET is_active = false, revoked_at = now(), revoked_reason = $2, updated_at = now()
		WHERE id = $1 AND revoked_at IS NULL`, sessionID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) RevokeAllUserSessions(ctx context.Context, userID, reason string) (int, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET is_active = false, revoked_at = now(), revoked_reason = $2, updated_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL`, userID, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) RevokeByFamily(ctx context.Context, tokenFamily, reason string) (int, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET is_active = false, revoked_at = now(), revoked_reason = $2, updated_at = now()
		WHERE token_family = $1 AND revoked_at IS NULL`, tokenFamily, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) CleanupExpiredSessions(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
