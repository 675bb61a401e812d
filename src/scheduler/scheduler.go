// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package scheduler runs keyed units of work one at a time, in submission
// order, on a single worker goroutine.
//
// Submitting a unit cancels every earlier unit with the same key: pending
// ones are dropped from the queue, a running one keeps the worker until its
// action returns but its result is discarded. Cancellation is cooperative;
// the scheduler never interrupts an action, it only decides whether the
// action's publish step may run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"lintworker/src/logging"

	"github.com/google/uuid"
)

// Disposition says how a unit left the scheduler.
type Disposition int

const (
	// Finished units ran and published their result.
	Finished Disposition = iota
	// Discarded units ran but their result was suppressed, either because
	// they were cancelled while running or because the action gave up.
	Discarded
	// Removed units were cancelled before their action started.
	Removed
)

func (d Disposition) String() string {
	switch d {
	case Finished:
		return "finished"
	case Discarded:
		return "discarded"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Outcome is what an action hands back to the scheduler. A Completed
// outcome carries the publish step; the scheduler runs it only if the unit
// has not been cancelled by then.
type Outcome struct {
	publish    func()
	superseded bool
}

// Completed wraps the effects of a successful run. publish may be nil.
func Completed(publish func()) Outcome {
	return Outcome{publish: publish}
}

// Superseded reports that the action noticed cancellation and produced
// nothing.
func Superseded() Outcome {
	return Outcome{superseded: true}
}

// IsSuperseded reports whether the outcome carries no effects.
func (o Outcome) IsSuperseded() bool {
	return o.superseded
}

// Action is the deferred body of a unit. ctx is cancelled when the unit is.
type Action func(ctx context.Context) Outcome

// Task is a unit of work as submitted by a caller.
type Task[K comparable] struct {
	// ID names the unit in logs. A random one is assigned when empty.
	ID     string
	Key    K
	Action Action
	// OnDispose, when set, is called exactly once when the unit leaves the
	// scheduler.
	OnDispose func(Disposition)
}

const (
	stateLive int32 = iota
	stateCancelled
	statePublishing
	stateFinished
)

type unit[K comparable] struct {
	id     string
	task   Task[K]
	ctx    context.Context
	cancel context.CancelFunc

	// state moves live -> cancelled, or live -> publishing -> finished.
	// Whichever of cancellation and publication wins the first transition
	// excludes the other.
	state atomic.Int32
	// settled is closed once a publish step has returned.
	settled chan struct{}

	disposeOnce sync.Once
}

func (u *unit[K]) markCancelled() {
	if u.state.CompareAndSwap(stateLive, stateCancelled) {
		u.cancel()
	}
}

func (u *unit[K]) isCancelled() bool {
	return u.state.Load() == stateCancelled
}

// awaitPublish blocks while the unit's publish step is running.
func (u *unit[K]) awaitPublish() {
	if u.state.Load() == statePublishing {
		<-u.settled
	}
}

// complete sets the completion flag and runs the publish step if the unit
// is still live.
func (u *unit[K]) complete(o Outcome) Disposition {
	if o.superseded {
		u.state.CompareAndSwap(stateLive, stateFinished)
		return Discarded
	}
	if !u.state.CompareAndSwap(stateLive, statePublishing) {
		return Discarded
	}
	if o.publish != nil {
		safeCall(u.id, "publish", o.publish)
	}
	u.state.Store(stateFinished)
	close(u.settled)
	return Finished
}

func (u *unit[K]) dispose(d Disposition) {
	u.disposeOnce.Do(func() {
		u.cancel()
		if u.task.OnDispose != nil {
			safeCall(u.id, "dispose", func() { u.task.OnDispose(d) })
		}
	})
}

// Option configures a Scheduler.
type Option[K comparable] func(*Scheduler[K])

// WithContext sets the parent of every unit context. Cancelling it cancels
// running actions but does not stop the worker; use Close for that.
func WithContext[K comparable](ctx context.Context) Option[K] {
	return func(s *Scheduler[K]) {
		s.baseCtx = ctx
	}
}

// WithOnStart registers a callback invoked on the worker right before an
// action starts.
func WithOnStart[K comparable](fn func(id string, key K)) Option[K] {
	return func(s *Scheduler[K]) {
		s.onStart = fn
	}
}

// WithOnDone registers a callback invoked on the worker after an action
// returned and its result was published or discarded.
func WithOnDone[K comparable](fn func(id string, key K, d Disposition)) Option[K] {
	return func(s *Scheduler[K]) {
		s.onDone = fn
	}
}

// Scheduler owns a single FIFO queue drained by one worker.
type Scheduler[K comparable] struct {
	baseCtx context.Context
	onStart func(id string, key K)
	onDone  func(id string, key K, d Disposition)

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*unit[K]
	running *unit[K]
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a scheduler with its worker goroutine.
func New[K comparable](opts ...Option[K]) *Scheduler[K] {
	s := &Scheduler[K]{
		baseCtx: context.Background(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Submit cancels every pending or running unit with the same key and
// enqueues task behind everything else. It returns the unit id.
func (s *Scheduler[K]) Submit(task Task[K]) string {
	id := task.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	u := &unit[K]{
		id:      id,
		task:    task,
		ctx:     ctx,
		cancel:  cancel,
		settled: make(chan struct{}),
	}

	s.mu.Lock()
	removed, running := s.detachLocked(task.Key)
	if s.closed {
		s.mu.Unlock()
		s.release(removed, running)
		u.markCancelled()
		u.dispose(Removed)
		return u.id
	}
	s.queue = append(s.queue, u)
	s.cond.Signal()
	s.mu.Unlock()

	s.release(removed, running)
	return u.id
}

// CancelAll cancels every unit with the given key. Pending units are removed
// and disposed immediately; a running unit is disposed once its action
// returns. If the running unit is already publishing, CancelAll waits for
// the publish step to return, so no effect of key lands after CancelAll.
// It must not be called from a publish step of the same key.
// It returns the number of units cancelled.
func (s *Scheduler[K]) CancelAll(key K) int {
	s.mu.Lock()
	removed, running := s.detachLocked(key)
	s.mu.Unlock()

	s.release(removed, running)
	if running != nil {
		running.awaitPublish()
	}
	n := len(removed)
	if running != nil {
		n++
	}
	return n
}

// detachLocked pulls pending units for key out of the queue and returns them
// with the running unit if it matches. s.mu must be held.
func (s *Scheduler[K]) detachLocked(key K) ([]*unit[K], *unit[K]) {
	var removed []*unit[K]
	kept := s.queue[:0]
	for _, u := range s.queue {
		if u.task.Key == key {
			removed = append(removed, u)
			continue
		}
		kept = append(kept, u)
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept

	var running *unit[K]
	if s.running != nil && s.running.task.Key == key {
		running = s.running
	}
	return removed, running
}

func (s *Scheduler[K]) release(removed []*unit[K], running *unit[K]) {
	for _, u := range removed {
		u.markCancelled()
		u.dispose(Removed)
	}
	if running != nil {
		running.markCancelled()
	}
}

// Len returns the number of units waiting to run.
func (s *Scheduler[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Running returns the key of the unit occupying the worker.
func (s *Scheduler[K]) Running() (K, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		var zero K
		return zero, false
	}
	return s.running.task.Key, true
}

// Close cancels everything, drops pending units and waits for the running
// action to return.
func (s *Scheduler[K]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.queue
		s.queue = nil
		running := s.running
		s.cond.Broadcast()
		s.mu.Unlock()

		s.release(pending, running)
		<-s.done
	})
}

func (s *Scheduler[K]) run() {
	defer close(s.done)
	for {
		u, ok := s.next()
		if !ok {
			return
		}
		s.execute(u)
	}
}

func (s *Scheduler[K]) next() (*unit[K], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, false
	}
	u := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.running = u
	return u, true
}

func (s *Scheduler[K]) execute(u *unit[K]) {
	var disposition Disposition
	if u.isCancelled() {
		disposition = Removed
	} else {
		if s.onStart != nil {
			s.onStart(u.id, u.task.Key)
		}
		outcome := s.invoke(u)
		disposition = u.complete(outcome)
	}

	s.mu.Lock()
	s.running = nil
	s.mu.Unlock()

	if disposition != Removed && s.onDone != nil {
		s.onDone(u.id, u.task.Key, disposition)
	}
	u.dispose(disposition)
}

func (s *Scheduler[K]) invoke(u *unit[K]) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.Log(fmt.Sprintf("unit %s panicked: %v", u.id, r), slog.LevelError)
			outcome = Superseded()
		}
	}()
	if u.task.Action == nil {
		return Completed(nil)
	}
	return u.task.Action(u.ctx)
}

func safeCall(id, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Log(fmt.Sprintf("unit %s %s panicked: %v", id, step, r), slog.LevelError)
		}
	}()
	fn()
}
