package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/snackboard/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	event1 := model.CounterChanged{Seq: 1, UserID: "u1", UserName: "Ana", Count: 3}
	if err := q.Enqueue(ctx, event1); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	eventChan := q.Dequeue(ctx)
	event := <-eventChan
	if event.Seq != 1 || event.UserID != "u1" || event.Count != 3 {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := q.Enqueue(ctx, model.CounterChanged{Seq: uint64(i)}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if err := q.Enqueue(ctx, model.CounterChanged{Seq: 3}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		if err := q.Enqueue(ctx, model.CounterChanged{Seq: uint64(i), Count: i}); err != nil {
			t.Fatal(err)
		}
	}
	_ = q.Close()

	var want uint64 = 1
	for e := range q.Dequeue(ctx) {
		if e.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, e.Seq)
		}
		want++
	}
	if want != 51 {
		t.Errorf("expected 50 events, got %d", want-1)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	const producers = 10
	const perProducer = 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				e := model.CounterChanged{UserID: fmt.Sprintf("u%d", p), Count: i}
				if err := q.Enqueue(ctx, e); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(ctx); l != producers*perProducer {
		t.Errorf("expected %d events, got %d", producers*perProducer, l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, model.CounterChanged{Seq: 1})
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}

	if err := q.Enqueue(ctx, model.CounterChanged{Seq: 2}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Events queued before Close are still delivered, then the channel closes.
	ch := q.Dequeue(ctx)
	select {
	case e, ok := <-ch:
		if !ok || e.Seq != 1 {
			t.Errorf("expected pending event, got %+v ok=%v", e, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending event")
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestInMemoryQueue_CanceledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, model.CounterChanged{Seq: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
