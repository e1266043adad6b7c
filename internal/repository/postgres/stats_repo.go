package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
)

// StatsRepo keeps the derived per-owner stats row. It is a cache; losing it is harmless.
type StatsRepo struct{ db *DB }

// NewStatsRepo constructs a stats cache backed by the user_stats table.
func NewStatsRepo(db *DB) *StatsRepo { return &StatsRepo{db: db} }

// Load returns the cached stats or errs.ErrNotFound.
func (r *StatsRepo) Load(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	const q = `SELECT stats, computed_at FROM user_stats WHERE owner_id=$1`
	var (
		raw []byte
		at  time.Time
	)
	if err := r.db.Pool.QueryRow(ctx, q, ownerID).Scan(&raw, &at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	var s model.UserStats
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	s.OwnerID = ownerID
	s.ComputedAt = at
	return &s, nil
}

// Store overwrites the owner's row wholesale.
func (r *StatsRepo) Store(ctx context.Context, s *model.UserStats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO user_stats (owner_id, stats, computed_at) VALUES ($1,$2,$3)
ON CONFLICT (owner_id) DO UPDATE SET stats=EXCLUDED.stats, computed_at=EXCLUDED.computed_at`
	_, err = r.db.Pool.Exec(ctx, q, s.OwnerID, raw, s.ComputedAt)
	return err
}
