package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQueueFIFO(t *testing.T) {
	q := New()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		q.Enqueue(id)
	}

	if q.Len() != len(ids) {
		t.Fatalf("expected %d buffered ids, got %d", len(ids), q.Len())
	}

	for i, want := range ids {
		got, ok := q.Dequeue(context.Background())
		if !ok {
			t.Fatalf("dequeue %d: expected ok", i)
		}
		if got != want {
			t.Fatalf("dequeue %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()
	want := uuid.New()

	done := make(chan uuid.UUID)
	go func() {
		id, ok := q.Dequeue(context.Background())
		if !ok {
			t.Error("expected ok from dequeue")
		}
		done <- id
	}()

	// Give the consumer time to block.
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(want)

	select {
	case got := <-done:
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up after enqueue")
	}
}

func TestQueueDequeueReturnsOnCancel(t *testing.T) {
	q := New()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after cancel")
	}
}

func TestQueueCloseDrainsBufferedIDs(t *testing.T) {
	q := New()

	first := uuid.New()
	second := uuid.New()
	q.Enqueue(first)
	q.Enqueue(second)
	q.Close()

	if id, ok := q.Dequeue(context.Background()); !ok || id != first {
		t.Fatalf("expected (%s, true), got (%s, %v)", first, id, ok)
	}
	if id, ok := q.Dequeue(context.Background()); !ok || id != second {
		t.Fatalf("expected (%s, true), got (%s, %v)", second, id, ok)
	}

	if _, ok := q.Dequeue(context.Background()); ok {
		t.Fatal("expected end-of-stream after drain")
	}
}

func TestQueueCloseWakesBlockedDequeue(t *testing.T) {
	q := New()

	done := make(chan bool)
	go func() {
		_, ok := q.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after close on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after close")
	}
}

func TestQueueEnqueueAfterClosePanics(t *testing.T) {
	q := New()
	q.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on enqueue after close")
		}
	}()

	q.Enqueue(uuid.New())
}
