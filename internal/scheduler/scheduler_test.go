package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/verify"
)

type fakeProcessor struct {
	mu       sync.Mutex
	calls    map[uuid.UUID]int
	order    []uuid.UUID
	inflight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
	fail     map[uuid.UUID]error
	state    model.State
	hook     func()
}

func (p *fakeProcessor) Process(_ context.Context, _ uuid.UUID, id uuid.UUID) (verify.Outcome, error) {
	n := p.inflight.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if p.hook != nil {
		p.hook()
	}
	time.Sleep(p.hold)
	p.inflight.Add(-1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[uuid.UUID]int{}
	}
	p.calls[id]++
	p.order = append(p.order, id)
	if err := p.fail[id]; err != nil {
		return verify.Outcome{}, err
	}
	st := p.state
	if st == "" {
		st = model.StateVerified
	}
	return verify.Outcome{State: st, Attempts: 1}, nil
}

type fakeBatches struct {
	mu       sync.Mutex
	statuses []model.BatchStatus
	refresh  int
}

func (b *fakeBatches) SetStatus(_ context.Context, _ uuid.UUID, st model.BatchStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, st)
	return nil
}

func (b *fakeBatches) RefreshCounts(_ context.Context, id uuid.UUID) (*model.UploadBatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh++
	return &model.UploadBatch{ID: id}, nil
}

type sleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.Must(uuid.NewV4())
	}
	return out
}

func batchJob(n int) Job {
	return Job{
		OwnerID:   uuid.Must(uuid.NewV4()),
		BatchID:   uuid.NullUUID{UUID: uuid.Must(uuid.NewV4()), Valid: true},
		RecordIDs: ids(n),
	}
}

func TestRunJob_TwelveRecordsInGroupsOfFive(t *testing.T) {
	proc := &fakeProcessor{hold: 5 * time.Millisecond}
	b := &fakeBatches{}
	sl := &sleeps{}
	s := New(proc, b, DefaultConfig, sl.sleep, nil, zaptest.NewLogger(t))

	job := batchJob(12)
	rep := s.RunJob(context.Background(), job)

	require.Equal(t, 3, rep.Groups)
	require.Equal(t, 12, rep.Attempted)
	require.Equal(t, 12, rep.Verified)
	require.Len(t, proc.order, 12)
	for _, id := range job.RecordIDs {
		require.Equal(t, 1, proc.calls[id])
	}
	require.LessOrEqual(t, proc.peak.Load(), int32(5))
	require.Equal(t, []time.Duration{time.Second, time.Second}, sl.waits)
	require.Equal(t, []model.BatchStatus{model.BatchProcessing}, b.statuses)
	require.Equal(t, 1, b.refresh)
}

func TestRunJob_GroupRunsConcurrently(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(3)
	proc := &fakeProcessor{hook: func() {
		barrier.Done()
		barrier.Wait()
	}}
	s := New(proc, nil, Config{GroupSize: 3}, (&sleeps{}).sleep, nil, zaptest.NewLogger(t))

	done := make(chan Report, 1)
	go func() { done <- s.RunJob(context.Background(), Job{OwnerID: uuid.Must(uuid.NewV4()), RecordIDs: ids(3)}) }()

	select {
	case rep := <-done:
		require.Equal(t, 1, rep.Groups)
		require.Equal(t, int32(3), proc.peak.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("group members did not run concurrently")
	}
}

func TestRunJob_FailureDoesNotStopSiblings(t *testing.T) {
	job := batchJob(7)
	proc := &fakeProcessor{fail: map[uuid.UUID]error{job.RecordIDs[1]: errors.New("db down")}}
	b := &fakeBatches{}
	s := New(proc, b, DefaultConfig, (&sleeps{}).sleep, nil, zaptest.NewLogger(t))

	rep := s.RunJob(context.Background(), job)
	require.Equal(t, 7, rep.Attempted)
	require.Equal(t, 1, rep.Errors)
	require.Equal(t, 6, rep.Verified)
	require.Len(t, proc.order, 7)
	require.Equal(t, 1, b.refresh)
}

func TestRunJob_AllInfrastructureErrorsFailBatch(t *testing.T) {
	job := batchJob(2)
	boom := errors.New("db down")
	proc := &fakeProcessor{fail: map[uuid.UUID]error{job.RecordIDs[0]: boom, job.RecordIDs[1]: boom}}
	b := &fakeBatches{}
	s := New(proc, b, DefaultConfig, (&sleeps{}).sleep, nil, zaptest.NewLogger(t))

	rep := s.RunJob(context.Background(), job)
	require.Equal(t, 2, rep.Errors)
	require.Equal(t, []model.BatchStatus{model.BatchProcessing, model.BatchFailed}, b.statuses)
	require.Zero(t, b.refresh)
}

func TestRunJob_CancelStopsBeforeNextGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := &fakeProcessor{}
	proc.hook = cancel
	s := New(proc, nil, Config{GroupSize: 2}, (&sleeps{}).sleep, nil, zaptest.NewLogger(t))

	rep := s.RunJob(ctx, Job{OwnerID: uuid.Must(uuid.NewV4()), RecordIDs: ids(5)})
	require.Equal(t, 1, rep.Groups)
	require.Equal(t, 2, rep.Attempted)
}

func TestEnqueue_FullQueue(t *testing.T) {
	s := New(&fakeProcessor{}, nil, Config{GroupSize: 5, QueueSize: 1}, nil, nil, zaptest.NewLogger(t))

	require.NoError(t, s.Enqueue(Job{RecordIDs: ids(1)}))
	require.ErrorIs(t, s.Enqueue(Job{RecordIDs: ids(1)}), errs.ErrQueueFull)
	require.NoError(t, s.Enqueue(Job{}), "empty jobs are dropped")
}

func TestEnqueue_CopiesIDs(t *testing.T) {
	s := New(&fakeProcessor{}, nil, Config{QueueSize: 1}, nil, nil, zaptest.NewLogger(t))
	in := ids(2)
	want := append([]uuid.UUID(nil), in...)
	require.NoError(t, s.Enqueue(Job{RecordIDs: in}))
	in[0] = uuid.Nil

	job := <-s.queue
	require.Equal(t, want, job.RecordIDs)
}

func TestRun_ConsumesQueueUntilCancelled(t *testing.T) {
	proc := &fakeProcessor{}
	s := New(proc, nil, DefaultConfig, (&sleeps{}).sleep, nil, zaptest.NewLogger(t))
	require.NoError(t, s.Enqueue(Job{OwnerID: uuid.Must(uuid.NewV4()), RecordIDs: ids(3)}))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return len(proc.order) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
