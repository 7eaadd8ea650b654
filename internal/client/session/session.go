// Package session drives one client's counting lifecycle: it loads the
// device identity and its local count, turns every count change into a
// CounterChanged event and hands it to a sequential sync worker that saves
// the count locally and then pushes it to the server.
//
// States move NoIdentity → IdentityEstablished → LocalCountLoading →
// LocalCountLoaded, and LocalCountLoaded ↔ Pushing while changes sync.
// ChangeUser returns to NoIdentity.
//
// Background ranking polls are not ordered against pushes; a poll may
// observe the server before an in-flight push lands.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/snackboard/internal/adapters/mq/queue"
	"github.com/okian/snackboard/internal/adapters/mq/worker"
	"github.com/okian/snackboard/internal/domain/model"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// Default session configuration constants.
const (
	defaultMaxCount      = 50
	defaultPollInterval  = 5 * time.Second
	defaultQueueCapacity = 64
)

// State is the position of a session in its lifecycle.
type State int

const (
	NoIdentity State = iota
	IdentityEstablished
	LocalCountLoading
	LocalCountLoaded
	Pushing
)

var stateNames = [...]string{
	NoIdentity:          "no_identity",
	IdentityEstablished: "identity_established",
	LocalCountLoading:   "local_count_loading",
	LocalCountLoaded:    "local_count_loaded",
	Pushing:             "pushing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IdentityStore keeps the device identity.
type IdentityStore interface {
	Lookup(ctx context.Context) (types.Identity, bool)
	Establish(ctx context.Context, name string) (types.Identity, error)
	Clear(ctx context.Context) error
}

// CountStore is the device-local counter cache.
type CountStore interface {
	ReadCount(ctx context.Context, id string) int
	WriteCount(ctx context.Context, id string, count int) error
}

// Syncer pushes counts to the server and holds the last pulled ranking.
type Syncer interface {
	Push(ctx context.Context, id, name string, count int) bool
	Pull(ctx context.Context) []types.UserRecord
	Ranking() []types.UserRecord
	Loaded() bool
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	State    State
	Identity types.Identity
	Count    int
}

// Session owns the client state and the sync pipeline behind it.
type Session struct {
	identities IdentityStore
	counts     CountStore
	syncer     Syncer

	queue  *queue.InMemoryQueue
	worker *worker.InMemoryWorker

	// Configuration
	maxCount      int
	pollInterval  time.Duration
	queueCapacity int
	pushOnLoad    bool
	onRanking     func([]types.UserRecord)

	mu       sync.Mutex
	state    State
	identity types.Identity
	count    int
	gen      uint64 // bumped on every identity change; stale loads compare against it
	seq      uint64 // last event accepted by the queue
	deferred []model.CounterChanged // changes that did not fit in the queue, oldest first
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	logger logger.Logger
}

// New creates a session. Nothing runs until Start.
func New(identities IdentityStore, counts CountStore, syncer Syncer, opts ...Option) *Session {
	s := &Session{
		identities:    identities,
		counts:        counts,
		syncer:        syncer,
		maxCount:      defaultMaxCount,
		pollInterval:  defaultPollInterval,
		queueCapacity: defaultQueueCapacity,
		pushOnLoad:    true,
		state:         NoIdentity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("session")
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueCapacity))
	s.worker = worker.NewInMemoryWorker(s.queue, counts, syncer,
		worker.WithName("sync-worker"),
		worker.WithOnProcessed(s.handleProcessed),
	)
	return s
}

// Start launches the sync worker and the ranking poller, then loads the
// stored identity if there is one.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Run(runCtx)
	}()

	if s.pollInterval > 0 {
		s.wg.Add(1)
		go s.poll(runCtx)
	}

	id, ok := s.identities.Lookup(ctx)
	if !ok {
		s.logger.Info(ctx, "no identity on this device")
		return nil
	}
	return s.load(ctx, id)
}

// Join establishes a new identity named name and loads its count.
func (s *Session) Join(ctx context.Context, name string) (types.Identity, error) {
	if err := s.running(); err != nil {
		return types.Identity{}, err
	}

	id, err := s.identities.Establish(ctx, name)
	if err != nil {
		return types.Identity{}, err
	}
	if err := s.load(ctx, id); err != nil {
		return types.Identity{}, err
	}
	return id, nil
}

// Increment adds one to the count. Once the count is above the configured
// cap the increment is ignored and the current count returned.
func (s *Session) Increment(ctx context.Context) (int, error) {
	return s.mutate(ctx, func(current int) int {
		if s.maxCount > 0 && current > s.maxCount {
			s.logger.Debug(ctx, "increment ignored above cap",
				logger.Int("count", current), logger.Int("max_count", s.maxCount))
			return current
		}
		return current + 1
	})
}

// Decrement subtracts one from the count, never going below zero.
func (s *Session) Decrement(ctx context.Context) (int, error) {
	return s.mutate(ctx, func(current int) int {
		return max(0, current-1)
	})
}

// SetCount replaces the count with n.
func (s *Session) SetCount(ctx context.Context, n int) (int, error) {
	if n < 0 {
		return 0, types.ErrNegativeCount
	}
	return s.mutate(ctx, func(int) int { return n })
}

// ChangeUser forgets the device identity and returns to NoIdentity. The
// server keeps the old record.
func (s *Session) ChangeUser(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.identities.Clear(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.identity = types.Identity{}
	s.count = 0
	s.transition(ctx, NoIdentity)
	return nil
}

// Flush blocks until every change accepted so far has been saved and pushed.
func (s *Session) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		seq, started := s.seq, s.started
		s.mu.Unlock()

		if !started || seq == 0 {
			return nil
		}
		if err := s.worker.WaitFor(ctx, seq); err != nil {
			return fmt.Errorf("flush: %w", err)
		}

		s.mu.Lock()
		settled := s.seq == seq && len(s.deferred) == 0
		s.mu.Unlock()
		if settled {
			return nil
		}
	}
}

// Stop stops accepting changes, waits for queued changes to sync, then
// stops the worker and the poller. If ctx ends first, changes already queued
// are abandoned and changes still waiting for a queue slot are only saved
// locally.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if !started {
		return s.queue.Close()
	}
	defer func() {
		cancel()
		s.wg.Wait()
		s.saveDeferred(context.WithoutCancel(ctx))
	}()

	flushErr := s.Flush(ctx)
	_ = s.queue.Close()
	if flushErr != nil {
		s.logger.Warn(ctx, "stopping with unsynced changes",
			logger.Int("pending", s.queue.Len(ctx)), logger.Error(flushErr))
		if err := s.worker.Shutdown(ctx); err != nil {
			s.logger.Debug(ctx, "sync worker still busy", logger.Error(err))
		}
		return fmt.Errorf("stop: %w", flushErr)
	}

	select {
	case <-s.worker.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop: %w", ctx.Err())
	}
}

// Refresh pulls the ranking now and returns the ranking held afterwards.
func (s *Session) Refresh(ctx context.Context) []types.UserRecord {
	return s.syncer.Pull(ctx)
}

// Ranking returns the last successfully pulled ranking.
func (s *Session) Ranking() []types.UserRecord {
	return s.syncer.Ranking()
}

// RankingLoaded reports whether any ranking pull has succeeded.
func (s *Session) RankingLoaded() bool {
	return s.syncer.Loaded()
}

// Snapshot returns the current state, identity and count.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Identity: s.identity, Count: s.count}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// load moves through IdentityEstablished and LocalCountLoading to
// LocalCountLoaded. A load overtaken by another identity change is dropped.
func (s *Session) load(ctx context.Context, id types.Identity) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.identity = id
	s.count = 0
	s.transition(ctx, IdentityEstablished)
	s.transition(ctx, LocalCountLoading)
	s.mu.Unlock()

	count := s.counts.ReadCount(ctx, id.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug(ctx, "discarding stale count load", logger.String("user_id", id.UserID))
		return nil
	}
	if pending, ok := s.deferredCountLocked(id.UserID); ok {
		count = pending
	}
	s.count = count
	s.transition(ctx, LocalCountLoaded)
	s.logger.Info(ctx, "local count loaded",
		logger.String("user_id", id.UserID),
		logger.String("user_name", id.UserName),
		logger.Int("count", count),
	)

	if !s.pushOnLoad {
		return nil
	}
	return s.enqueueLocked(ctx)
}

func (s *Session) mutate(ctx context.Context, next func(current int) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readyLocked(); err != nil {
		return 0, err
	}

	prev := s.count
	n := next(prev)
	if n == prev {
		return n, nil
	}

	s.count = n
	if err := s.enqueueLocked(ctx); err != nil {
		s.count = prev
		return 0, err
	}
	return n, nil
}

// enqueueLocked emits a CounterChanged event for the current count.
func (s *Session) enqueueLocked(ctx context.Context) error {
	event := model.CounterChanged{
		UserID:   s.identity.UserID,
		UserName: s.identity.UserName,
		Count:    s.count,
		At:       time.Now(),
	}
	if err := s.submitLocked(ctx, event); err != nil {
		return err
	}
	s.transition(ctx, Pushing)
	return nil
}

// submitLocked queues event behind anything already deferred. When the queue
// is full the event is deferred instead and re-emitted once the worker frees
// a slot; consecutive deferred changes of one user collapse into the latest.
func (s *Session) submitLocked(ctx context.Context, event model.CounterChanged) error {
	if len(s.deferred) == 0 {
		err := s.emitLocked(ctx, event)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, queue.ErrClosed):
			return ErrStopped
		case !errors.Is(err, queue.ErrFull):
			return err
		}
	}

	s.logger.Debug(ctx, "sync queue full; deferring change",
		logger.String("user_id", event.UserID), logger.Int("count", event.Count))
	if n := len(s.deferred); n > 0 && s.deferred[n-1].UserID == event.UserID {
		s.deferred[n-1] = event
		return nil
	}
	s.deferred = append(s.deferred, event)
	return nil
}

func (s *Session) emitLocked(ctx context.Context, event model.CounterChanged) error {
	event.Seq = s.seq + 1
	if err := s.queue.Enqueue(ctx, event); err != nil {
		return err
	}
	s.seq = event.Seq
	return nil
}

// drainLocked moves deferred changes into the queue while it has room.
func (s *Session) drainLocked(ctx context.Context) {
	for len(s.deferred) > 0 {
		if err := s.emitLocked(ctx, s.deferred[0]); err != nil {
			if !errors.Is(err, queue.ErrFull) {
				s.logger.Debug(ctx, "deferred changes wait for stop", logger.Error(err))
			}
			return
		}
		s.deferred = s.deferred[1:]
	}
	s.deferred = nil
}

// deferredCountLocked returns the newest deferred count for id.
func (s *Session) deferredCountLocked(id string) (int, bool) {
	for i := len(s.deferred) - 1; i >= 0; i-- {
		if s.deferred[i].UserID == id {
			return s.deferred[i].Count, true
		}
	}
	return 0, false
}

// saveDeferred keeps changes that never reached the worker on this device.
// It runs once the worker has stopped so no older queued write can follow.
func (s *Session) saveDeferred(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.deferred {
		s.logger.Warn(ctx, "change not pushed before stop; saved locally",
			logger.String("user_id", e.UserID), logger.Int("count", e.Count))
		if err := s.counts.WriteCount(ctx, e.UserID, e.Count); err != nil {
			s.logger.Warn(ctx, "local save failed", logger.Error(err))
		}
	}
	s.deferred = nil
}

// handleProcessed runs on the worker goroutine after each event.
func (s *Session) handleProcessed(event worker.Event, _ worker.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()

	if len(s.deferred) > 0 {
		s.drainLocked(ctx)
		return
	}
	if s.state == Pushing && event.Seq >= s.seq {
		s.transition(ctx, LocalCountLoaded)
	}
}

func (s *Session) running() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Session) runningLocked() error {
	switch {
	case s.stopped:
		return ErrStopped
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

func (s *Session) readyLocked() error {
	if err := s.runningLocked(); err != nil {
		return err
	}
	switch s.state {
	case NoIdentity:
		return ErrNoIdentity
	case IdentityEstablished, LocalCountLoading:
		return ErrNotReady
	}
	return nil
}

func (s *Session) transition(ctx context.Context, to State) {
	if s.state == to {
		return
	}
	s.logger.Debug(ctx, "session state changed",
		logger.String("from", s.state.String()),
		logger.String("to", to.String()),
	)
	s.state = to
}

func (s *Session) poll(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.refreshInBackground(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshInBackground(ctx)
		}
	}
}

func (s *Session) refreshInBackground(ctx context.Context) {
	ranked := s.syncer.Pull(ctx)
	if ctx.Err() != nil {
		return
	}
	if s.onRanking != nil {
		s.onRanking(ranked)
	}
}
