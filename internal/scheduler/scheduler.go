// Package scheduler runs background verification jobs in fixed-size concurrent
// groups separated by a delay.
package scheduler

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/metrics"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/verify"
)

// Processor verifies one record.
type Processor interface {
	Process(ctx context.Context, ownerID, id uuid.UUID) (verify.Outcome, error)
}

// Batches maintains batch status around a job.
type Batches interface {
	SetStatus(ctx context.Context, id uuid.UUID, status model.BatchStatus) error
	RefreshCounts(ctx context.Context, id uuid.UUID) (*model.UploadBatch, error)
}

// Job is a unit of background work. It carries identifiers only.
type Job struct {
	OwnerID   uuid.UUID
	BatchID   uuid.NullUUID
	RecordIDs []uuid.UUID
}

// Config tunes grouping and the queue.
type Config struct {
	GroupSize  int
	GroupDelay time.Duration
	QueueSize  int
}

// DefaultConfig groups by 5 with a 1s pause.
var DefaultConfig = Config{GroupSize: 5, GroupDelay: time.Second, QueueSize: 1024}

// Report summarizes one job run.
type Report struct {
	Groups    int
	Attempted int
	Skipped   int
	Verified  int
	Failed    int
	Errors    int // infrastructure failures
}

// Scheduler owns the job queue and its single consumer.
type Scheduler struct {
	proc    Processor
	batches Batches
	cfg     Config
	queue   chan Job
	sleep   verify.SleepFunc
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New constructs a scheduler. batches and m may be nil; a nil sleep uses the real clock.
func New(proc Processor, batches Batches, cfg Config, sleep verify.SleepFunc, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	if cfg.GroupSize < 1 {
		cfg.GroupSize = DefaultConfig.GroupSize
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig.QueueSize
	}
	if sleep == nil {
		sleep = verify.Sleep
	}
	return &Scheduler{
		proc:    proc,
		batches: batches,
		cfg:     cfg,
		queue:   make(chan Job, cfg.QueueSize),
		sleep:   sleep,
		metrics: m,
		log:     log,
	}
}

// Enqueue hands a job to the background consumer without blocking.
func (s *Scheduler) Enqueue(job Job) error {
	if len(job.RecordIDs) == 0 {
		return nil
	}
	job.RecordIDs = append([]uuid.UUID(nil), job.RecordIDs...)
	select {
	case s.queue <- job:
		s.metrics.SetQueueDepth(len(s.queue))
		return nil
	default:
		return errs.ErrQueueFull
	}
}

// Run consumes jobs one at a time until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.metrics.SetQueueDepth(len(s.queue))
			rep := s.RunJob(ctx, job)
			s.log.Info("verification job done",
				zap.Stringer("owner_id", job.OwnerID),
				zap.Stringer("batch_id", job.BatchID.UUID),
				zap.Int("groups", rep.Groups),
				zap.Int("verified", rep.Verified),
				zap.Int("failed", rep.Failed),
				zap.Int("skipped", rep.Skipped),
				zap.Int("errors", rep.Errors))
		}
	}
}

// RunJob processes job.RecordIDs in order, GroupSize at a time. Records of a
// group run concurrently; a failure never stops its siblings. Between groups the
// scheduler waits GroupDelay; cancellation of ctx stops before the next group.
func (s *Scheduler) RunJob(ctx context.Context, job Job) Report {
	var rep Report
	s.setStatus(ctx, job, model.BatchProcessing)

	for start := 0; start < len(job.RecordIDs); start += s.cfg.GroupSize {
		if start > 0 {
			if err := s.sleep(ctx, s.cfg.GroupDelay); err != nil {
				s.log.Info("verification job interrupted", zap.Int("remaining", len(job.RecordIDs)-start))
				break
			}
		}
		end := min(start+s.cfg.GroupSize, len(job.RecordIDs))
		s.runGroup(ctx, job.OwnerID, job.RecordIDs[start:end], &rep)
	}

	if job.BatchID.Valid && s.batches != nil {
		if rep.Errors > 0 && rep.Errors == rep.Attempted {
			s.setStatus(context.WithoutCancel(ctx), job, model.BatchFailed)
		} else if _, err := s.batches.RefreshCounts(context.WithoutCancel(ctx), job.BatchID.UUID); err != nil {
			s.log.Warn("batch counts not refreshed", zap.Stringer("batch_id", job.BatchID.UUID), zap.Error(err))
		}
	}
	return rep
}

func (s *Scheduler) runGroup(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, rep *Report) {
	s.metrics.GroupStarted()
	rep.Groups++

	outs := make([]verify.Outcome, len(ids))
	errsByIdx := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			outs[i], errsByIdx[i] = s.proc.Process(ctx, ownerID, id)
			return nil
		})
	}
	_ = g.Wait()

	for i := range ids {
		rep.Attempted++
		switch {
		case errsByIdx[i] != nil:
			rep.Errors++
			s.log.Error("verification aborted", zap.Stringer("record_id", ids[i]), zap.Error(errsByIdx[i]))
		case outs[i].Skipped:
			rep.Skipped++
		case outs[i].State == model.StateVerified:
			rep.Verified++
		case outs[i].State == model.StateFailed:
			rep.Failed++
		}
	}
}

func (s *Scheduler) setStatus(ctx context.Context, job Job, st model.BatchStatus) {
	if !job.BatchID.Valid || s.batches == nil {
		return
	}
	if err := s.batches.SetStatus(ctx, job.BatchID.UUID, st); err != nil {
		s.log.Warn("batch status not updated",
			zap.Stringer("batch_id", job.BatchID.UUID), zap.String("status", string(st)), zap.Error(err))
	}
}
