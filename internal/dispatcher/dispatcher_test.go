package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-platform/internal/model"
	"github.com/aliskhannn/image-platform/internal/queue"
	"github.com/aliskhannn/image-platform/internal/repository/job"
	"github.com/aliskhannn/image-platform/internal/rpc"
)

type fakeStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]model.Job
	updates []model.Job
}

func newFakeStore(jobs ...model.Job) *fakeStore {
	s := &fakeStore{jobs: make(map[uuid.UUID]model.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) GetJob(_ context.Context, id uuid.UUID) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

func (s *fakeStore) UpdateJob(_ context.Context, j model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	s.updates = append(s.updates, j)
	return nil
}

func (s *fakeStore) last() model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[len(s.updates)-1]
}

type fakeClient struct {
	mu       sync.Mutex
	calls    int
	response rpc.ProcessResponse
	err      error
}

func (c *fakeClient) Process(_ context.Context, req rpc.ProcessRequest) (rpc.ProcessResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return rpc.ProcessResponse{}, c.err
	}
	res := c.response
	res.JobID = req.JobID
	return res, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []model.Job
}

func (n *fakeNotifier) NotifyFinished(_ context.Context, j model.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, j)
}

func queuedJob() model.Job {
	return model.Job{
		ID:        uuid.New(),
		Status:    model.StatusQueued,
		SourceURI: "file:///tmp/in.png",
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatchCompletesJob(t *testing.T) {
	j := queuedJob()
	store := newFakeStore(j)
	client := &fakeClient{response: rpc.ProcessResponse{Status: rpc.ResultCompleted, OutputURI: "/tmp/out.png"}}
	notifier := &fakeNotifier{}

	d := New(queue.New(), store, client, notifier, Config{RetryCount: 3})
	d.dispatch(context.Background(), j.ID)

	if client.calls != 1 {
		t.Fatalf("expected 1 rpc call, got %d", client.calls)
	}

	// First update marks Processing, second the terminal state.
	if len(store.updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(store.updates))
	}
	if store.updates[0].Status != model.StatusProcessing {
		t.Fatalf("expected processing before rpc, got %s", store.updates[0].Status)
	}

	final := store.last()
	if final.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.StartedAt == nil || final.FinishedAt == nil {
		t.Fatal("expected started and finished timestamps")
	}
	if final.Error != "" {
		t.Fatalf("expected empty error, got %q", final.Error)
	}

	if len(notifier.jobs) != 1 || notifier.jobs[0].Status != model.StatusCompleted {
		t.Fatalf("expected one completed notification, got %+v", notifier.jobs)
	}
}

func TestDispatchLogicalFailureIsNotRetried(t *testing.T) {
	j := queuedJob()
	store := newFakeStore(j)
	client := &fakeClient{response: rpc.ProcessResponse{Status: rpc.ResultFailed, ErrorMessage: "unsupported transform"}}

	d := New(queue.New(), store, client, nil, Config{RetryCount: 5})
	d.dispatch(context.Background(), j.ID)

	if client.calls != 1 {
		t.Fatalf("worker-reported failure must not be retried, got %d calls", client.calls)
	}

	final := store.last()
	if final.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Error != "unsupported transform" {
		t.Fatalf("expected worker error message, got %q", final.Error)
	}
}

func TestDispatchRetriesTransportErrors(t *testing.T) {
	j := queuedJob()
	store := newFakeStore(j)
	client := &fakeClient{err: fmt.Errorf("dial: %w", rpc.ErrEndpointUnreachable)}

	d := New(queue.New(), store, client, nil, Config{RetryCount: 3, RetryBaseDelay: 50 * time.Millisecond})
	d.dispatch(context.Background(), j.ID)

	if client.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", client.calls)
	}

	final := store.last()
	if final.Status != model.StatusFailed {
		t.Fatalf("expected failed after exhaustion, got %s", final.Status)
	}
	if final.Error != "worker is not reachable or timed out" {
		t.Fatalf("unexpected error message %q", final.Error)
	}
}

func TestDispatchNonTransientErrorIsTerminal(t *testing.T) {
	j := queuedJob()
	store := newFakeStore(j)
	client := &fakeClient{err: fmt.Errorf("malformed request")}

	d := New(queue.New(), store, client, nil, Config{RetryCount: 3})
	d.dispatch(context.Background(), j.ID)

	if client.calls != 1 {
		t.Fatalf("non-transient error must not be retried, got %d calls", client.calls)
	}
	if final := store.last(); final.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
}

func TestDispatchSkipsMissingJob(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}

	d := New(queue.New(), store, client, nil, Config{})
	d.dispatch(context.Background(), uuid.New())

	if client.calls != 0 {
		t.Fatalf("expected no rpc calls for a missing job, got %d", client.calls)
	}
	if len(store.updates) != 0 {
		t.Fatalf("expected no updates for a missing job, got %d", len(store.updates))
	}
}

func TestRunDrainsQueueUntilClosed(t *testing.T) {
	first := queuedJob()
	second := queuedJob()
	store := newFakeStore(first, second)
	client := &fakeClient{response: rpc.ProcessResponse{Status: rpc.ResultCompleted}}

	q := queue.New()
	q.Enqueue(first.ID)
	q.Enqueue(second.ID)
	q.Close()

	d := New(q, store, client, nil, Config{RetryCount: 1})

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after the queue was closed and drained")
	}

	if client.calls != 2 {
		t.Fatalf("expected 2 dispatched jobs, got %d", client.calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		base    time.Duration
		want    time.Duration
	}{
		{1, 200 * time.Millisecond, 200 * time.Millisecond},
		{2, 200 * time.Millisecond, 400 * time.Millisecond},
		{3, 200 * time.Millisecond, 800 * time.Millisecond},
		{10, 200 * time.Millisecond, 5 * time.Second},     // capped
		{1, 10 * time.Millisecond, 50 * time.Millisecond}, // floored base
		{0, 200 * time.Millisecond, 200 * time.Millisecond},
	}

	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, tc.base); got != tc.want {
			t.Errorf("backoffDelay(%d, %s) = %s, want %s", tc.attempt, tc.base, got, tc.want)
		}
	}
}
