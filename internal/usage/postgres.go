package usage

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/kyc-verifier/internal/model"
)

// PG is a PostgreSQL-backed usage counter.
type PG struct {
	pool pgxQuerier
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed counter over any pgx pool or connection.
func NewPG(q pgxQuerier) *PG { return &PG{pool: q} }

// Increment upserts the (owner, provider) row and returns the new count.
func (u *PG) Increment(ctx context.Context, ownerID uuid.UUID, provider string) (int64, error) {
	const q = `
INSERT INTO api_usage (owner_id, provider, calls, updated_at)
VALUES ($1,$2,1,now())
ON CONFLICT (owner_id, provider)
DO UPDATE SET calls = api_usage.calls + 1, updated_at = now()
RETURNING calls`
	var calls int64
	if err := u.pool.QueryRow(ctx, q, ownerID, provider).Scan(&calls); err != nil {
		return 0, err
	}
	return calls, nil
}

// List returns the owner's counters ordered by provider.
func (u *PG) List(ctx context.Context, ownerID uuid.UUID) ([]model.APIUsage, error) {
	const q = `SELECT provider, calls, updated_at FROM api_usage WHERE owner_id=$1 ORDER BY provider`
	rows, err := u.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.APIUsage
	for rows.Next() {
		a := model.APIUsage{OwnerID: ownerID}
		if err := rows.Scan(&a.Provider, &a.Calls, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
