package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog is the jackc/pgx-backed Log implementation. Hash chaining,
// when enabled, is serialized through an in-process mutex: pgx gives us
// no cross-process sequence guarantee, so a single writer process is
// assumed, matching the per-request-handle scoping the session store
// uses for the same reason.
type PostgresLog struct {
	pool        *pgxpool.Pool
	chainHashes bool

	mu       sync.Mutex
	lastHash string
}

func NewPostgresLog(pool *pgxpool.Pool, chainHashes bool) *PostgresLog {
	return &PostgresLog{pool: pool, chainHashes: chainHashes}
}

func (p *PostgresLog) Append(ctx context.Context, e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var prev string
	if p.chainHashes {
		p.mu.Lock()
		prev = p.lastHash
	}

	hash, err := computeHash(e, prev)
	if err != nil {
		if p.chainHashes {
			p.mu.Unlock()
		}
		return err
	}
	e.EventHash = hash
	e.PreviousEventHash = prev

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		if p.chainHashes {
			p.mu.Unlock()
		}
		return err
	}
	riskIndicators, err := json.Marshal(e.RiskIndicators)
	if err != nil {
		if p.chainHashes {
			p.mu.Unlock()
		}
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO audit_events (
			id, user_id, session_id, event_type, event_severity,
			ip_address, user_agent, resource, action, result,
			metadata, risk_indicators, event_hash, previous_event_hash, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.UserID, e.SessionID, e.EventType, e.EventSeverity,
		e.IPAddress, e.UserAgent, e.Resource, e.Action, e.Result,
		metadata, riskIndicators, e.EventHash, e.PreviousEventHash, e.CreatedAt,
	)
	if p.chainHashes {
		if err == nil {
			p.lastHash = hash
		}
		p.mu.Unlock()
	}
	return err
}

const auditSelectColumns = `
	id, user_id, session_id, event_type, event_severity,
	ip_address, user_agent, resource, action, result,
	metadata, risk_indicators, event_hash, previous_event_hash, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var metadata, riskIndicators []byte
	err := row.Scan(
		&e.ID, &e.UserID, &e.SessionID, &e.EventType, &e.EventSeverity,
		&e.IPAddress, &e.UserAgent, &e.Resource, &e.Action, &e.Result,
		&metadata, &riskIndicators, &e.EventHash, &e.PreviousEventHash, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, err
		}
	}
	if len(riskIndicators) > 0 {
		if err := json.Unmarshal(riskIndicators, &e.RiskIndicators); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (p *PostgresLog) query(ctx context.Context, sql string, args ...any) ([]*Event, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresLog) FindByUser(ctx context.Context, userID string, limit int) ([]*Event, error) {
	return p.query(ctx, `SELECT `+auditSelectColumns+` FROM audit_events WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (p *PostgresLog) FindBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	return p.query(ctx, `SELECT `+auditSelectColumns+` FROM audit_events WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`, sessionID, limit)
}

func (p *PostgresLog) FindByType(ctx context.Context, eventType EventType, limit int) ([]*Event, error) {
	return p.query(ctx, `SELECT `+auditSelectColumns+` FROM audit_events WHERE event_type = $1 ORDER BY created_at DESC LIMIT $2`, eventType, limit)
}

func (p *PostgresLog) FindBySeverityInWindow(ctx context.Context, minSeverity Severity, windowSeconds, limit int) ([]*Event, error) {
	severities := make([]Severity, 0, 4)
	minRank := severityRank[minSeverity]
	for sev, rank := range severityRank {
		if rank >= minRank {
			severities = append(severities, sev)
		}
	}
	cutoff := time.Now().Add(-time.Duration(windowSeconds) * time.Second)
	return p.query(ctx, `SELECT `+auditSelectColumns+` FROM audit_events
		WHERE event_severity = ANY($1) AND created_at >= $2 ORDER BY created_at DESC LIMIT $3`, severities, cutoff, limit)
}

func (p *PostgresLog) Recent(ctx context.Context, limit int) ([]*Event, error) {
	return p.query(ctx, `SELECT `+auditSelectColumns+` FROM audit_events ORDER BY created_at DESC LIMIT $1`, limit)
}

// VerifyChain walks the whole table oldest-first. It is meant to run out
// of band (a scheduled job or an operator invocation), not on a request
// path, since it reads every row.
func (p *PostgresLog) VerifyChain(ctx context.Context) error {
	events, err := p.query(ctx, `SELECT `+auditSelectColumns+` FROM audit_events ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return err
	}
	return verifyChainEvents(events, p.chainHashes)
}
