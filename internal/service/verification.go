// Package service contains application services for uploads, verification and reporting.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kyc-verifier/internal/columnmap"
	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/ingest"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/repository"
	"github.com/and161185/kyc-verifier/internal/scheduler"
	"github.com/and161185/kyc-verifier/internal/sheet"
	"github.com/and161185/kyc-verifier/internal/usage"
	"github.com/and161185/kyc-verifier/internal/validate"
	"github.com/and161185/kyc-verifier/internal/verify"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// VerificationService is the application surface of the pipeline.
type VerificationService interface {
	// Upload parses, validates and ingests a file, then queues its records.
	Upload(ctx context.Context, ownerID uuid.UUID, t model.VerificationType, filename string, r io.Reader, size int64) (model.UploadReport, error)
	// VerifySingle ingests one record outside any batch and verifies it synchronously.
	VerifySingle(ctx context.Context, ownerID uuid.UUID, t model.VerificationType, fields map[model.Field]string) (*model.Record, error)

	ListRecords(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.Record, int, error)
	// ListBatchRecords filters by status; "" and "all" select every state.
	ListBatchRecords(ctx context.Context, ownerID, batchID uuid.UUID, status string, page model.Page) ([]model.Record, int, error)
	ListBatches(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.UploadBatch, int, error)
	BatchStats(ctx context.Context, ownerID, batchID uuid.UUID) (*model.UploadBatch, model.StateCounts, error)

	// RetryFailed returns the batch's failed records to pending and queues them.
	RetryFailed(ctx context.Context, ownerID, batchID uuid.UUID) (int, error)
	DeleteBatch(ctx context.Context, ownerID, batchID uuid.UUID) error

	GetStats(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error)
	RefreshStats(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error)
	Usage(ctx context.Context, ownerID uuid.UUID) ([]model.APIUsage, error)

	// ResumePending queues every pending record left behind by a previous run.
	ResumePending(ctx context.Context) (int, error)
}

// Processor runs the state machine on one record.
type Processor interface {
	Process(ctx context.Context, ownerID, id uuid.UUID) (verify.Outcome, error)
}

// Queue accepts background verification jobs.
type Queue interface {
	Enqueue(job scheduler.Job) error
}

// Stats serves and rebuilds per-owner aggregates.
type Stats interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error)
	Refresh(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error)
}

// Deps are the collaborators of VerificationServiceImpl.
type Deps struct {
	Records   repository.RecordRepository
	Batches   repository.BatchRepository
	Ingest    *ingest.Engine
	Processor Processor
	Queue     Queue
	Stats     Stats
	Usage     usage.Counter
}

type VerificationServiceImpl struct {
	Deps
	maxUpload int64
	log       *zap.Logger
}

// NewVerificationService constructs the service. maxUpload <= 0 uses sheet.MaxFileSize.
func NewVerificationService(d Deps, maxUpload int64, log *zap.Logger) *VerificationServiceImpl {
	if maxUpload <= 0 || maxUpload > sheet.MaxFileSize {
		maxUpload = sheet.MaxFileSize
	}
	return &VerificationServiceImpl{Deps: d, maxUpload: maxUpload, log: log}
}

var _ VerificationService = (*VerificationServiceImpl)(nil)

// Upload enqueues the accepted records after they are committed. A full queue
// does not fail the upload: the records stay pending and are picked up by
// ResumePending.
func (s *VerificationServiceImpl) Upload(ctx context.Context, ownerID uuid.UUID, t model.VerificationType, filename string, r io.Reader, size int64) (model.UploadReport, error) {
	if ownerID == uuid.Nil {
		return model.UploadReport{}, errs.ErrUnauthorized
	}
	if _, ok := columnmap.ProfileFor(t); !ok {
		return model.UploadReport{}, fmt.Errorf("verification type %q: %w", t, errs.ErrInvalidArgument)
	}
	if size > s.maxUpload {
		return model.UploadReport{}, &errs.FileError{Reason: fmt.Sprintf("file exceeds %d byte limit", s.maxUpload)}
	}

	tbl, err := sheet.Read(filename, r)
	if err != nil {
		return model.UploadReport{}, err
	}
	report, accepted, err := s.Ingest.IngestTable(ctx, ingest.Upload{
		OwnerID:  ownerID,
		Type:     t,
		Filename: filename,
		Size:     size,
	}, tbl)
	if err != nil {
		return model.UploadReport{}, err
	}

	ids := make([]uuid.UUID, len(accepted))
	for i, rec := range accepted {
		ids[i] = rec.ID
	}
	job := scheduler.Job{OwnerID: ownerID, BatchID: uuid.NullUUID{UUID: report.BatchID, Valid: true}, RecordIDs: ids}
	if err := s.Queue.Enqueue(job); err != nil {
		s.log.Warn("verification queue rejected upload, records stay pending",
			zap.Stringer("batch_id", report.BatchID), zap.Int("records", len(ids)), zap.Error(err))
	}
	s.refreshStats(ctx, ownerID)
	return report, nil
}

// VerifySingle returns the record in its final state. Validation failures wrap
// errs.ErrInvalidArgument; an existing natural key wraps errs.ErrAlreadyExists.
func (s *VerificationServiceImpl) VerifySingle(ctx context.Context, ownerID uuid.UUID, t model.VerificationType, fields map[model.Field]string) (*model.Record, error) {
	if ownerID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	profile, ok := columnmap.ProfileFor(t)
	if !ok {
		return nil, fmt.Errorf("verification type %q: %w", t, errs.ErrInvalidArgument)
	}
	draft, rej := validate.Row(profile, 0, fields)
	if rej != nil {
		return nil, fmt.Errorf("%s: %s: %w", rej.Field, rej.Reason, errs.ErrInvalidArgument)
	}

	res, err := s.Ingest.Ingest(ctx, ownerID, nil, []model.Record{draft})
	if err != nil {
		return nil, err
	}
	if len(res.Accepted) == 0 {
		return nil, fmt.Errorf("%s: %w", validate.ReasonDuplicate, errs.ErrAlreadyExists)
	}
	id := res.Accepted[0].ID

	if _, err := s.Processor.Process(ctx, ownerID, id); err != nil {
		return nil, fmt.Errorf("verify %s: %w", id, err)
	}
	return s.Records.Get(ctx, ownerID, id)
}

func (s *VerificationServiceImpl) ListRecords(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.Record, int, error) {
	if ownerID == uuid.Nil {
		return nil, 0, errs.ErrUnauthorized
	}
	return s.Records.ListByOwner(ctx, ownerID, normalizePage(page))
}

func (s *VerificationServiceImpl) ListBatchRecords(ctx context.Context, ownerID, batchID uuid.UUID, status string, page model.Page) ([]model.Record, int, error) {
	if ownerID == uuid.Nil {
		return nil, 0, errs.ErrUnauthorized
	}
	var state model.State
	if status != "" && status != "all" {
		st, err := model.ParseState(status)
		if err != nil {
			return nil, 0, fmt.Errorf("%v: %w", err, errs.ErrInvalidArgument)
		}
		state = st
	}
	if _, err := s.Batches.Get(ctx, ownerID, batchID); err != nil {
		return nil, 0, err
	}
	return s.Records.ListByBatch(ctx, ownerID, batchID, state, normalizePage(page))
}

func (s *VerificationServiceImpl) ListBatches(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.UploadBatch, int, error) {
	if ownerID == uuid.Nil {
		return nil, 0, errs.ErrUnauthorized
	}
	return s.Batches.List(ctx, ownerID, normalizePage(page))
}

// BatchStats returns the stored batch and live per-state counts of its records.
func (s *VerificationServiceImpl) BatchStats(ctx context.Context, ownerID, batchID uuid.UUID) (*model.UploadBatch, model.StateCounts, error) {
	b, err := s.Batches.Get(ctx, ownerID, batchID)
	if err != nil {
		return nil, model.StateCounts{}, err
	}
	c, err := s.Batches.Counts(ctx, batchID)
	if err != nil {
		return nil, model.StateCounts{}, err
	}
	return b, c, nil
}

// RetryFailed reports how many records were reset. If the queue is full the
// reset records stay pending and errs.ErrQueueFull is returned.
func (s *VerificationServiceImpl) RetryFailed(ctx context.Context, ownerID, batchID uuid.UUID) (int, error) {
	if _, err := s.Batches.Get(ctx, ownerID, batchID); err != nil {
		return 0, err
	}
	ids, err := s.Records.RetryFailed(ctx, ownerID, batchID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.Batches.SetStatus(ctx, batchID, model.BatchUploaded); err != nil {
		return 0, err
	}
	if _, err := s.Batches.RefreshCounts(ctx, batchID); err != nil {
		s.log.Warn("refresh batch counts", zap.Stringer("batch_id", batchID), zap.Error(err))
	}
	s.refreshStats(ctx, ownerID)

	job := scheduler.Job{OwnerID: ownerID, BatchID: uuid.NullUUID{UUID: batchID, Valid: true}, RecordIDs: ids}
	if err := s.Queue.Enqueue(job); err != nil {
		return len(ids), fmt.Errorf("queue retried records: %w", err)
	}
	return len(ids), nil
}

// DeleteBatch removes the batch with its records and rebuilds the owner's stats.
func (s *VerificationServiceImpl) DeleteBatch(ctx context.Context, ownerID, batchID uuid.UUID) error {
	if err := s.Batches.Delete(ctx, ownerID, batchID); err != nil {
		return err
	}
	s.refreshStats(ctx, ownerID)
	return nil
}

func (s *VerificationServiceImpl) GetStats(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	if ownerID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	return s.Stats.Get(ctx, ownerID)
}

func (s *VerificationServiceImpl) RefreshStats(ctx context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	if ownerID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	return s.Stats.Refresh(ctx, ownerID)
}

func (s *VerificationServiceImpl) Usage(ctx context.Context, ownerID uuid.UUID) ([]model.APIUsage, error) {
	if ownerID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	return s.Deps.Usage.List(ctx, ownerID)
}

// ResumePending groups pending records by owner and batch in the order the store
// returns them and queues one job per group. It returns the number of queued jobs.
func (s *VerificationServiceImpl) ResumePending(ctx context.Context) (int, error) {
	refs, err := s.Records.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	type groupKey struct {
		owner uuid.UUID
		batch uuid.NullUUID
	}
	var order []groupKey
	groups := make(map[groupKey][]uuid.UUID)
	for _, r := range refs {
		k := groupKey{owner: r.OwnerID, batch: r.BatchID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r.ID)
	}

	queued := 0
	for _, k := range order {
		err := s.Queue.Enqueue(scheduler.Job{OwnerID: k.owner, BatchID: k.batch, RecordIDs: groups[k]})
		if errors.Is(err, errs.ErrQueueFull) {
			s.log.Warn("verification queue full, resume stopped early",
				zap.Int("queued_jobs", queued), zap.Int("total_jobs", len(order)))
			return queued, err
		}
		if err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		s.log.Info("resumed pending records", zap.Int("jobs", queued), zap.Int("records", len(refs)))
	}
	return queued, nil
}

func (s *VerificationServiceImpl) refreshStats(ctx context.Context, ownerID uuid.UUID) {
	if s.Stats == nil {
		return
	}
	if _, err := s.Stats.Refresh(ctx, ownerID); err != nil {
		s.log.Warn("refresh stats", zap.Stringer("owner_id", ownerID), zap.Error(err))
	}
}

func normalizePage(p model.Page) model.Page {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = defaultPageLimit
	case p.Limit > maxPageLimit:
		p.Limit = maxPageLimit
	}
	return p
}
