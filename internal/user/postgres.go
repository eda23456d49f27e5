package user

import (
	"encoding/json"
	"errors"
	"time"

	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is the jackc/pgx-backed Repository implementation.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userSelectColumns = `
	id, email, name, password_hash, is_active, security_level,
	attributes, known_device_hashes, mfa_enabled, totp_secret,
	backup_code_hashes, created_at, password_changed_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var attributes, devices, backupCodes []byte
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.SecurityLevel,
		&attributes, &devices, &u.MFAEnabled, &u.TOTPSecret,
		&backupCodes, &u.CreatedAt, &u.PasswordChangedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &u.Attributes); err != nil {
			return nil, err
		}
	}
	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &u.KnownDeviceHashes); err != nil {
			return nil, err
		}
	}
	if len(backupCodes) > 0 {
		if err := json.Unmarshal(backupCodes, &u.BackupCodes); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (p *PostgresRepository) FindByID(ctx context.Context, id string) (*User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userSelectColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (p *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userSelectColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (p *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3 WHERE id = $1`,
		id, hash, changedAt)
	return err
}

func (p *PostgresRepository) AddKnownDevice(ctx context.Context, id, fingerprint string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users SET known_device_hashes = (
			SELECT to_jsonb(array_agg(DISTINCT d)) FROM jsonb_array_elements_text(
				known_device_hashes || to_jsonb(ARRAY[$2::text])
			) AS d
		), updated_at = now() WHERE id = $1`, id, fingerprint)
	return err
}

// ConsumeBackupCode rewrites the backup_code_hashes JSONB array in place,
// stamping consumedAt on the element whose codeHash matches and leaving
// every other element untouched. Mirrors AddKnownDevice's
// read-transform-write-in-SQL style rather than a round trip through Go.
func (p *PostgresRepository) ConsumeBackupCode(ctx context.Context, id, codeHash string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users SET backup_code_hashes = (
			SELECT jsonb_agg(
				CASE WHEN elem->>'codeHash' = $2 AND elem->'consumedAt' IS NULL
					THEN elem || jsonb_build_object('consumedAt', now())
					ELSE elem
				END
			)
			FROM jsonb_array_elements(backup_code_hashes) AS elem
		), updated_at = now() WHERE id = $1`, id, codeHash)
	return err
}

func (p *PostgresRepository) Save(ctx context.Context, u *User) error {
	attributes, err := json.Marshal(u.Attributes)
	if err != nil {
		return err
	}
	devices, err := json.Marshal(u.KnownDeviceHashes)
	if err != nil {
		return err
	}
	backupCodes, err := json.Marshal(u.BackupCodes)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, name, password_hash, is_active, security_level,
			attributes, known_device_hashes, mfa_enabled, totp_secret,
			backup_code_hashes, created_at, password_changed_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, name = EXCLUDED.name,
			password_hash = EXCLUDED.password_hash, is_active = EXCLUDED.is_active,
			security_level = EXCLUDED.security_level, attributes = EXCLUDED.attributes,
			known_device_hashes = EXCLUDED.known_device_hashes, mfa_enabled = EXCLUDED.mfa_enabled,
			totp_secret = EXCLUDED.totp_secret, backup_code_hashes = EXCLUDED.backup_code_hashes,
			password_changed_at = EXCLUDED.password_changed_at, updated_at = EXCLUDED.updated_at`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.IsActive, u.SecurityLevel,
		attributes, devices, u.MFAEnabled, u.TOTPSecret,
		backupCodes, u.CreatedAt, u.PasswordChangedAt, u.UpdatedAt,
	)
	return err
}
