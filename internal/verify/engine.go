// Package verify drives records through pending → processing → verified|failed.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kyc-verifier/internal/crypto"
	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/metrics"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/provider"
)

// Records is the part of the record store the state machine mutates.
type Records interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Resolve(ctx context.Context, id uuid.UUID, state model.State, payload json.RawMessage, reason string) error
}

// Batches refreshes per-batch counters after a transition.
type Batches interface {
	RefreshCounts(ctx context.Context, id uuid.UUID) (*model.UploadBatch, error)
}

// StatsRefresher rebuilds the owner's derived stats.
type StatsRefresher interface {
	Refresh(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error)
}

// UsageCounter counts logical verification requests.
type UsageCounter interface {
	Increment(ctx context.Context, ownerID uuid.UUID, provider string) (int64, error)
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy bounds provider attempts per logical verification.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy is 3 attempts with 1s, 2s waits in between.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Backoff returns the wait before attempt n+1, n >= 1.
func (p Policy) Backoff(n int) time.Duration {
	return p.BaseDelay << (n - 1)
}

// Deps are the collaborators of Engine. Batches, Stats, Usage, Metrics and
// Fingerprints may be nil.
type Deps struct {
	Records      Records
	Batches      Batches
	Stats        StatsRefresher
	Usage        UsageCounter
	Provider     provider.Verifier
	Metrics      *metrics.Metrics
	Fingerprints *crypto.Fingerprinter
}

// Engine is the verification state machine.
type Engine struct {
	Deps
	policy Policy
	sleep  SleepFunc
	log    *zap.Logger
}

// New constructs an engine. A nil sleep uses the real clock.
func New(d Deps, p Policy, sleep SleepFunc, log *zap.Logger) *Engine {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Engine{Deps: d, policy: p, sleep: sleep, log: log}
}

// Outcome describes what Process did with one record.
type Outcome struct {
	State    model.State
	Skipped  bool // record was not pending
	Attempts int  // wire-level provider calls
}

// Process verifies one pending record of the owner. Records in any other state are
// skipped untouched. Once started, the attempt loop ignores cancellation of ctx.
// A returned error is an infrastructure failure; provider failures resolve the
// record to failed instead.
func (e *Engine) Process(ctx context.Context, ownerID, id uuid.UUID) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)

	rec, err := e.Records.Get(ctx, ownerID, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load record %s: %w", id, err)
	}
	if rec.State != model.StatePending {
		return Outcome{State: rec.State, Skipped: true}, nil
	}

	if err := e.Records.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, errs.ErrInvalidState) {
			// another worker took it between Get and the conditional update
			return Outcome{State: model.StateProcessing, Skipped: true}, nil
		}
		return Outcome{}, fmt.Errorf("mark processing %s: %w", id, err)
	}
	e.countUsage(ctx, rec)

	res, attempts, callErr := e.call(ctx, rec)
	state, payload, reason := resolution(res, callErr)

	if err := e.Records.Resolve(ctx, id, state, payload, reason); err != nil {
		return Outcome{State: model.StateProcessing, Attempts: attempts}, fmt.Errorf("resolve %s: %w", id, err)
	}
	e.Metrics.Resolved(string(rec.Type), string(state))

	fields := []zap.Field{
		zap.Stringer("record_id", id),
		zap.String("type", string(rec.Type)),
		zap.String("tax_id_fp", e.Fingerprints.Fingerprint(rec.TaxID)),
		zap.String("state", string(state)),
		zap.Int("attempts", attempts),
	}
	if state == model.StateFailed {
		e.log.Info("verification failed", append(fields, zap.String("reason", reason))...)
	} else {
		e.log.Info("verification succeeded", fields...)
	}

	e.afterTransition(ctx, rec)
	return Outcome{State: state, Attempts: attempts}, nil
}

func (e *Engine) countUsage(ctx context.Context, rec *model.Record) {
	if e.Usage == nil {
		return
	}
	if _, err := e.Usage.Increment(ctx, rec.OwnerID, e.Provider.Name()); err != nil {
		e.log.Warn("usage counter not updated", zap.Stringer("owner_id", rec.OwnerID), zap.Error(err))
	}
}

// call runs the attempt loop. An undetermined result with a request id is
// polled through Status on the remaining attempts.
func (e *Engine) call(ctx context.Context, rec *model.Record) (provider.Result, int, error) {
	req := provider.RequestFromRecord(rec)
	var (
		res       provider.Result
		err       error
		requestID string
	)
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if serr := e.sleep(ctx, e.policy.Backoff(attempt-1)); serr != nil {
				return res, attempt - 1, serr
			}
		}

		start := time.Now()
		if requestID == "" {
			res, err = e.Provider.Verify(ctx, req)
		} else {
			res, err = e.Provider.Status(ctx, requestID)
		}
		e.Metrics.ProviderAttempt(string(rec.Type), attemptCategory(err), time.Since(start))

		if err != nil {
			if !provider.IsRetryable(err) {
				return res, attempt, err
			}
			e.log.Debug("provider attempt failed, will retry",
				zap.Stringer("record_id", rec.ID), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if res.Outcome != provider.OutcomePending {
			return res, attempt, nil
		}
		if res.RequestID == "" {
			return res, attempt, provider.ErrNotDetermined
		}
		requestID = res.RequestID
		err = provider.ErrNotDetermined
	}
	return res, e.policy.MaxAttempts, err
}

func attemptCategory(err error) string {
	if err == nil {
		return "OK"
	}
	return string(provider.CategoryOf(err))
}

// resolution maps a call result to the terminal state, stored payload and reason.
func resolution(res provider.Result, err error) (model.State, json.RawMessage, string) {
	if err == nil {
		if res.Outcome == provider.OutcomeVerified {
			return model.StateVerified, res.Payload, ""
		}
		return model.StateFailed, res.Payload, res.Reason
	}

	reason := err.Error()
	var pe *provider.Error
	if !errors.As(err, &pe) {
		reason = fmt.Sprintf("%s: %s", provider.CategoryUnknown, err.Error())
	}
	payload, _ := json.Marshal(map[string]string{
		"error":    reason,
		"category": string(provider.CategoryOf(err)),
	})
	return model.StateFailed, payload, reason
}

func (e *Engine) afterTransition(ctx context.Context, rec *model.Record) {
	if e.Batches != nil && rec.BatchID.Valid {
		if _, err := e.Batches.RefreshCounts(ctx, rec.BatchID.UUID); err != nil {
			e.log.Warn("batch counts not refreshed", zap.Stringer("batch_id", rec.BatchID.UUID), zap.Error(err))
		}
	}
	if e.Stats != nil {
		if _, err := e.Stats.Refresh(ctx, rec.OwnerID); err != nil {
			e.log.Warn("stats not refreshed", zap.Stringer("owner_id", rec.OwnerID), zap.Error(err))
		}
	}
}
