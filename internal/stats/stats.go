// Package stats keeps per-owner verification counters as a derived, rebuildable cache.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
)

// DefaultStaleness is how long cached stats are served without recomputation.
const DefaultStaleness = 5 * time.Minute

// Counter runs one grouped aggregation per verification type.
type Counter interface {
	CountByType(ctx context.Context, ownerID uuid.UUID, t model.VerificationType) (model.StateCounts, error)
}

// Cache stores whole UserStats values. Load returns errs.ErrNotFound on a miss.
type Cache interface {
	Load(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error)
	Store(ctx context.Context, s *model.UserStats) error
}

// Aggregator serves cached stats and rebuilds them from records.
type Aggregator struct {
	counts    Counter
	cache     Cache
	staleness time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// New constructs an aggregator. staleness <= 0 uses DefaultStaleness.
func New(counts Counter, cache Cache, staleness time.Duration, log *zap.Logger) *Aggregator {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Aggregator{counts: counts, cache: cache, staleness: staleness, now: time.Now, log: log}
}

// Get returns cached stats while they are younger than the staleness window,
// and recomputes otherwise.
func (a *Aggregator) Get(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	cached, err := a.cache.Load(ctx, ownerID)
	switch {
	case err == nil:
		if a.now().Sub(cached.ComputedAt) < a.staleness {
			return cached, nil
		}
	case errors.Is(err, errs.ErrNotFound):
	default:
		a.log.Warn("stats cache read failed", zap.Stringer("owner_id", ownerID), zap.Error(err))
	}
	return a.Refresh(ctx, ownerID)
}

// Refresh recomputes the owner's stats from records and overwrites the cache.
// Concurrent refreshes are safe: each writes a full value computed from storage.
func (a *Aggregator) Refresh(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	s := &model.UserStats{
		OwnerID: ownerID,
		ByType:  make(map[model.VerificationType]model.StateCounts, len(model.VerificationTypes)),
	}
	for _, t := range model.VerificationTypes {
		c, err := a.counts.CountByType(ctx, ownerID, t)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		s.ByType[t] = c
		s.Totals = s.Totals.Add(c)
	}
	s.ComputedAt = a.now().UTC()

	if err := a.cache.Store(ctx, s); err != nil {
		// the value is still correct, only the next read pays for it
		a.log.Warn("stats cache write failed", zap.Stringer("owner_id", ownerID), zap.Error(err))
	}
	return s, nil
}
