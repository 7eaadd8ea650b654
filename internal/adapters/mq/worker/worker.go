// Package worker drains counter changes: each event is saved locally and then
// pushed to the server, strictly one event at a time.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/snackboard/internal/adapters/mq/queue"
	"github.com/okian/snackboard/pkg/logger"
)

// Event abstracts what workers read off the queue.
type Event = queue.Event

// Saver persists the latest count for an identity on this device.
type Saver interface {
	WriteCount(ctx context.Context, id string, count int) error
}

// Pusher sends the latest count to the server. It reports success and never
// returns an error; a successful push also refreshes the ranking.
type Pusher interface {
	Push(ctx context.Context, id, name string, count int) bool
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Result describes how one event was handled.
type Result struct {
	Saved   bool
	Pushed  bool
	SaveErr error
}

// InMemoryWorker processes events sequentially so a push always completes
// before the pull it triggers and before the next event starts.
type InMemoryWorker struct {
	queue  Queue
	saver  Saver
	pusher Pusher
	name   string

	onProcessed func(Event, Result)

	// Progress tracking for WaitFor
	mu        sync.Mutex
	processed uint64
	notify    chan struct{}

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, saver Saver, pusher Pusher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		saver:    saver,
		pusher:   pusher,
		name:     "worker", // default name
		notify:   make(chan struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop. It returns when ctx is done, Shutdown is
// called, or the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			w.processEvent(ctx, event)
		}
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Shutdown stops the worker after the event in progress, dropping anything
// still queued.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the highest sequence number handled so far.
func (w *InMemoryWorker) Processed() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed
}

// WaitFor blocks until the event with sequence seq has been handled, the
// worker stops, or ctx is done.
func (w *InMemoryWorker) WaitFor(ctx context.Context, seq uint64) error {
	for {
		w.mu.Lock()
		if w.processed >= seq {
			w.mu.Unlock()
			return nil
		}
		ch := w.notify
		w.mu.Unlock()

		select {
		case <-ch:
		case <-w.done:
			if w.Processed() >= seq {
				return nil
			}
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processEvent saves then pushes one event. The push happens even when the
// local save fails so the server still sees the latest count.
func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) {
	var res Result

	if err := w.saver.WriteCount(ctx, event.UserID, event.Count); err != nil {
		res.SaveErr = err
		w.logger.Warn(ctx, "local save failed",
			logger.String("user_id", event.UserID),
			logger.Int("count", event.Count),
			logger.Error(err),
		)
	} else {
		res.Saved = true
	}

	res.Pushed = w.pusher.Push(ctx, event.UserID, event.UserName, event.Count)
	if !res.Pushed {
		w.logger.Debug(ctx, "push not acknowledged; server may be stale",
			logger.String("user_id", event.UserID),
			logger.Int("count", event.Count),
		)
	}

	if w.onProcessed != nil {
		w.onProcessed(event, res)
	}

	w.mu.Lock()
	if event.Seq > w.processed {
		w.processed = event.Seq
	}
	close(w.notify)
	w.notify = make(chan struct{})
	w.mu.Unlock()
}
