package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/repository"
	"github.com/and161185/kyc-verifier/internal/scheduler"
	"github.com/and161185/kyc-verifier/internal/verify"
)

type fakeRecords struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*model.Record
	order   []uuid.UUID
	batches *fakeBatches

	listByBatchState model.State
	listPage         model.Page
	pending          []model.RecordRef
}

var _ repository.RecordRepository = (*fakeRecords)(nil)

func newFakeRecords(b *fakeBatches) *fakeRecords {
	return &fakeRecords{byID: map[uuid.UUID]*model.Record{}, batches: b}
}

func (f *fakeRecords) ExistingKeys(_ context.Context, ownerID uuid.UUID, t model.VerificationType, keys []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]struct{}{}
	for _, k := range keys {
		want[k] = struct{}{}
	}
	out := map[string]struct{}{}
	for _, r := range f.byID {
		if r.OwnerID != ownerID || r.Type != t {
			continue
		}
		if _, ok := want[r.NaturalKey()]; ok {
			out[r.NaturalKey()] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeRecords) Ingest(_ context.Context, batch *model.UploadBatch, recs []model.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch != nil && f.batches != nil {
		f.batches.put(*batch)
	}
	for i := range recs {
		r := recs[i]
		f.byID[r.ID] = &r
		f.order = append(f.order, r.ID)
	}
	return nil
}

func (f *fakeRecords) Get(_ context.Context, ownerID, id uuid.UUID) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok || r.OwnerID != ownerID {
		return nil, errs.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRecords) MarkProcessing(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok || r.State != model.StatePending {
		return errs.ErrInvalidState
	}
	r.State = model.StateProcessing
	return nil
}

func (f *fakeRecords) Resolve(_ context.Context, id uuid.UUID, state model.State, payload json.RawMessage, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok || r.State != model.StateProcessing {
		return errs.ErrInvalidState
	}
	r.State, r.Payload, r.FailureReason = state, payload, reason
	return nil
}

func (f *fakeRecords) RetryFailed(_ context.Context, ownerID, batchID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range f.order {
		r := f.byID[id]
		if r.OwnerID == ownerID && r.BatchID.Valid && r.BatchID.UUID == batchID && r.State == model.StateFailed {
			r.State = model.StatePending
			r.RetryCount++
			r.FailureReason = ""
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRecords) ListByOwner(_ context.Context, ownerID uuid.UUID, page model.Page) ([]model.Record, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPage = page
	var out []model.Record
	for _, id := range f.order {
		if r := f.byID[id]; r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (f *fakeRecords) ListByBatch(_ context.Context, ownerID, batchID uuid.UUID, state model.State, page model.Page) ([]model.Record, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listByBatchState, f.listPage = state, page
	var out []model.Record
	for _, id := range f.order {
		r := f.byID[id]
		if r.OwnerID == ownerID && r.BatchID.UUID == batchID && (state == "" || r.State == state) {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (f *fakeRecords) CountByType(_ context.Context, ownerID uuid.UUID, t model.VerificationType) (model.StateCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c model.StateCounts
	for _, r := range f.byID {
		if r.OwnerID == ownerID && r.Type == t {
			c.Set(r.State, countOf(c, r.State)+1)
		}
	}
	return c, nil
}

func countOf(c model.StateCounts, s model.State) int {
	switch s {
	case model.StatePending:
		return c.Pending
	case model.StateProcessing:
		return c.Processing
	case model.StateVerified:
		return c.Verified
	default:
		return c.Failed
	}
}

func (f *fakeRecords) ListPending(context.Context) ([]model.RecordRef, error) {
	return f.pending, nil
}

func (f *fakeRecords) setState(id uuid.UUID, s model.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].State = s
}

type fakeBatches struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]model.UploadBatch
	statuses []model.BatchStatus
	deleted  []uuid.UUID
}

var _ repository.BatchRepository = (*fakeBatches)(nil)

func newFakeBatches() *fakeBatches { return &fakeBatches{byID: map[uuid.UUID]model.UploadBatch{}} }

func (f *fakeBatches) put(b model.UploadBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[b.ID] = b
}

func (f *fakeBatches) Get(_ context.Context, ownerID, id uuid.UUID) (*model.UploadBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok || b.OwnerID != ownerID {
		return nil, errs.ErrNotFound
	}
	return &b, nil
}

func (f *fakeBatches) List(_ context.Context, ownerID uuid.UUID, _ model.Page) ([]model.UploadBatch, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UploadBatch
	for _, b := range f.byID {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

func (f *fakeBatches) Counts(context.Context, uuid.UUID) (model.StateCounts, error) {
	return model.StateCounts{Verified: 2, Failed: 1}, nil
}

func (f *fakeBatches) SetStatus(_ context.Context, id uuid.UUID, status model.BatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	b.Status = status
	f.byID[id] = b
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeBatches) RefreshCounts(_ context.Context, id uuid.UUID) (*model.UploadBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.byID[id]
	return &b, nil
}

func (f *fakeBatches) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok || b.OwnerID != ownerID {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeProcessor resolves records to a fixed state through the record fake.
type fakeProcessor struct {
	records *fakeRecords
	final   model.State
	err     error
	calls   []uuid.UUID
}

func (p *fakeProcessor) Process(ctx context.Context, _ uuid.UUID, id uuid.UUID) (verify.Outcome, error) {
	p.calls = append(p.calls, id)
	if p.err != nil {
		return verify.Outcome{}, p.err
	}
	if err := p.records.MarkProcessing(ctx, id); err != nil {
		return verify.Outcome{Skipped: true}, nil
	}
	if err := p.records.Resolve(ctx, id, p.final, json.RawMessage(`{}`), ""); err != nil {
		return verify.Outcome{}, err
	}
	return verify.Outcome{State: p.final, Attempts: 1}, nil
}

type fakeQueue struct {
	jobs []scheduler.Job
	full bool
}

func (q *fakeQueue) Enqueue(job scheduler.Job) error {
	if q.full {
		return errs.ErrQueueFull
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeStats struct {
	refreshes int
	get       *model.UserStats
}

func (s *fakeStats) Get(context.Context, uuid.UUID) (*model.UserStats, error) { return s.get, nil }

func (s *fakeStats) Refresh(_ context.Context, ownerID uuid.UUID) (*model.UserStats, error) {
	s.refreshes++
	return &model.UserStats{OwnerID: ownerID}, nil
}

type fakeUsage struct {
	out []model.APIUsage
}

func (u *fakeUsage) Increment(context.Context, uuid.UUID, string) (int64, error) { return 1, nil }

func (u *fakeUsage) List(context.Context, uuid.UUID) ([]model.APIUsage, error) { return u.out, nil }
