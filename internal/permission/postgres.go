package permission

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the jackc/pgx-backed rule Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type conditionRow struct {
	Type        ConditionType   `json:"type"`
	Key         string          `json:"key"`
	Operator    Operator        `json:"operator"`
	ValueText   string          `json:"valueText"`
	ValueNumber float64         `json:"valueNumber"`
	ValueJSON   json.RawMessage `json:"valueJson"`
}

func (p *PostgresStore) All(ctx context.Context) ([]Rule, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, resource, action, conditions, priority, effect FROM permission_rules ORDER BY priority DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		var conditionsRaw []byte
		if err := rows.Scan(&r.ID, &r.Resource, &r.Action, &conditionsRaw, &r.Priority, &r.Effect); err != nil {
			return nil, err
		}
		if len(conditionsRaw) > 0 {
			var conditionRows []conditionRow
			if err := json.Unmarshal(conditionsRaw, &conditionRows); err != nil {
				return nil, err
			}
			for _, cr := range conditionRows {
				r.Conditions = append(r.Conditions, Condition{
					Type: cr.Type, Key: cr.Key, Operator: cr.Operator,
					ValueText: cr.ValueText, ValueNumber: cr.ValueNumber, ValueJSON: cr.ValueJSON,
				})
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Create(ctx context.Context, r Rule) error {
	rows := make([]conditionRow, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		rows = append(rows, conditionRow{
			Type: c.Type, Key: c.Key, Operator: c.Operator,
			ValueText: c.ValueText, ValueNumber: c.ValueNumber, ValueJSON: c.ValueJSON,
		})
	}
	conditionsJSON, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO permission_rules (id, resource, action, conditions, priority, effect) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.Resource, r.Action, conditionsJSON, r.Priority, r.Effect)
	return err
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM permission_rules`).Scan(&n)
	return n, err
}
