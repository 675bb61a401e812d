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

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// recorder collects published results and dispositions per label.
type recorder struct {
	mu           sync.Mutex
	published    []string
	dispositions map[string]Disposition
	disposed     chan string
}

func newRecorder() *recorder {
	return &recorder{
		dispositions: make(map[string]Disposition),
		disposed:     make(chan string, 64),
	}
}

func (r *recorder) task(key, label string, body func(ctx context.Context)) Task[string] {
	return Task[string]{
		Key: key,
		Action: func(ctx context.Context) Outcome {
			if body != nil {
				body(ctx)
			}
			return Completed(func() {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.published = append(r.published, label)
			})
		},
		OnDispose: func(d Disposition) {
			r.mu.Lock()
			r.dispositions[label] = d
			r.mu.Unlock()
			r.disposed <- label
		},
	}
}

func (r *recorder) waitDisposed(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.disposed:
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for %d dispositions, got %d", n, i)
		}
	}
}

func (r *recorder) snapshot() ([]string, map[string]Disposition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Disposition, len(r.dispositions))
	for k, v := range r.dispositions {
		out[k] = v
	}
	return append([]string(nil), r.published...), out
}

// blocker occupies the worker until release is closed.
func blocker(r *recorder, key string) (Task[string], chan struct{}, chan struct{}) {
	started := make(chan struct{})
	release := make(chan struct{})
	task := r.task(key, "blocker", func(ctx context.Context) {
		close(started)
		<-release
	})
	return task, started, release
}

func waitClosed(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("timed out")
	}
}

func TestScheduler_RunsInSubmissionOrder(t *testing.T) {
	s := New[string]()
	defer s.Close()
	r := newRecorder()

	for _, key := range []string{"a", "b", "c", "d"} {
		s.Submit(r.task(key, key, nil))
	}
	r.waitDisposed(t, 4)

	published, dispositions := r.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d"}, published)
	for _, key := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, Finished, dispositions[key], key)
	}
}

func TestScheduler_SupersedesPendingSameKey(t *testing.T) {
	s := New[string]()
	defer s.Close()
	r := newRecorder()

	block, started, release := blocker(r, "blocker")
	s.Submit(block)
	waitClosed(t, started)

	var ran []string
	var mu sync.Mutex
	track := func(label string) func(context.Context) {
		return func(context.Context) {
			mu.Lock()
			ran = append(ran, label)
			mu.Unlock()
		}
	}

	s.Submit(r.task("A", "A1", track("A1")))
	s.Submit(r.task("A", "A2", track("A2")))
	s.Submit(r.task("B", "B1", track("B1")))

	// A1 is removed as soon as A2 arrives.
	r.waitDisposed(t, 1)
	_, dispositions := r.snapshot()
	assert.Equal(t, Removed, dispositions["A1"])
	assert.Equal(t, 2, s.Len())

	close(release)
	r.waitDisposed(t, 3)

	published, dispositions := r.snapshot()
	assert.Equal(t, []string{"blocker", "A2", "B1"}, published)
	assert.Equal(t, []string{"A2", "B1"}, ran)
	assert.Equal(t, Finished, dispositions["A2"])
	assert.Equal(t, Finished, dispositions["B1"])
}

func TestScheduler_CancelledWhileRunningDiscardsResult(t *testing.T) {
	s := New[string]()
	defer s.Close()
	r := newRecorder()

	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool
	s.Submit(r.task("A", "A1", func(ctx context.Context) {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
	}))
	waitClosed(t, started)

	s.Submit(r.task("A", "A2", nil))
	key, running := s.Running()
	require.True(t, running)
	assert.Equal(t, "A", key)

	close(release)
	r.waitDisposed(t, 2)

	published, dispositions := r.snapshot()
	assert.True(t, sawCancel.Load())
	assert.Equal(t, []string{"A2"}, published)
	assert.Equal(t, Discarded, dispositions["A1"])
	assert.Equal(t, Finished, dispositions["A2"])
}

func TestScheduler_CancelAllLeavesOtherKeys(t *testing.T) {
	s := New[string]()
	defer s.Close()
	r := newRecorder()

	block, started, release := blocker(r, "blocker")
	s.Submit(block)
	waitClosed(t, started)

	s.Submit(r.task("A", "A1", nil))
	s.Submit(r.task("B", "B1", nil))
	s.Submit(r.task("C", "C1", nil))

	assert.Equal(t, 1, s.CancelAll("B"))
	assert.Equal(t, 0, s.CancelAll("missing"))
	assert.Equal(t, 2, s.Len())

	close(release)
	r.waitDisposed(t, 4)

	published, dispositions := r.snapshot()
	assert.Equal(t, []string{"blocker", "A1", "C1"}, published)
	assert.Equal(t, Removed, dispositions["B1"])
}

func TestScheduler_DisposesExactlyOnce(t *testing.T) {
	s := New[string]()
	r := newRecorder()

	block, started, release := blocker(r, "blocker")
	s.Submit(block)
	waitClosed(t, started)

	var calls atomic.Int32
	s.Submit(Task[string]{
		Key:       "A",
		Action:    func(context.Context) Outcome { return Completed(nil) },
		OnDispose: func(Disposition) { calls.Add(1) },
	})
	s.CancelAll("A")
	s.CancelAll("A")
	s.Submit(r.task("A", "A2", nil))

	close(release)
	r.waitDisposed(t, 2)
	s.Close()

	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_AtMostOneActionAtATime(t *testing.T) {
	s := New[string]()
	defer s.Close()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	const units = 25
	wg.Add(units)
	for i := 0; i < units; i++ {
		key := string(rune('a' + i))
		s.Submit(Task[string]{
			Key: key,
			Action: func(context.Context) Outcome {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return Completed(nil)
			},
			OnDispose: func(Disposition) { wg.Done() },
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitClosed(t, done)
	assert.Equal(t, int32(1), peak.Load())
}

func TestScheduler_SupersededOutcomeIsNotPublished(t *testing.T) {
	s := New[string]()
	defer s.Close()

	var published atomic.Bool
	disposed := make(chan Disposition, 1)
	s.Submit(Task[string]{
		Key: "A",
		Action: func(context.Context) Outcome {
			return Superseded()
		},
		OnDispose: func(d Disposition) { disposed <- d },
	})

	select {
	case d := <-disposed:
		assert.Equal(t, Discarded, d)
	case <-time.After(waitTimeout):
		t.Fatal("timed out")
	}
	assert.False(t, published.Load())
}

func TestScheduler_SurvivesPanickingAction(t *testing.T) {
	s := New[string]()
	defer s.Close()
	r := newRecorder()

	s.Submit(Task[string]{
		Key: "boom",
		Action: func(context.Context) Outcome {
			panic("analysis exploded")
		},
		OnDispose: func(d Disposition) {
			r.mu.Lock()
			r.dispositions["boom"] = d
			r.mu.Unlock()
			r.disposed <- "boom"
		},
	})
	s.Submit(r.task("next", "next", nil))
	r.waitDisposed(t, 2)

	published, dispositions := r.snapshot()
	assert.Equal(t, []string{"next"}, published)
	assert.Equal(t, Discarded, dispositions["boom"])
}

func TestScheduler_CloseDropsPendingUnits(t *testing.T) {
	s := New[string]()
	r := newRecorder()

	block, started, release := blocker(r, "blocker")
	s.Submit(block)
	waitClosed(t, started)
	s.Submit(r.task("A", "A1", nil))
	s.Submit(r.task("B", "B1", nil))

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	r.waitDisposed(t, 2)
	close(release)
	waitClosed(t, closed)
	r.waitDisposed(t, 1)

	published, dispositions := r.snapshot()
	assert.Empty(t, published)
	assert.Equal(t, Removed, dispositions["A1"])
	assert.Equal(t, Removed, dispositions["B1"])
	assert.Equal(t, Discarded, dispositions["blocker"])

	s.Submit(r.task("C", "C1", nil))
	r.waitDisposed(t, 1)
	_, dispositions = r.snapshot()
	assert.Equal(t, Removed, dispositions["C1"])
}

func TestScheduler_HooksSeeEveryExecutedUnit(t *testing.T) {
	var mu sync.Mutex
	var started []string
	var done []Disposition
	s := New[string](
		WithOnStart[string](func(id, key string) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, key)
		}),
		WithOnDone[string](func(id, key string, d Disposition) {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, d)
		}),
	)
	defer s.Close()
	r := newRecorder()

	s.Submit(r.task("A", "A", nil))
	s.Submit(r.task("B", "B", nil))
	r.waitDisposed(t, 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A", "B"}, started)
	assert.Equal(t, []Disposition{Finished, Finished}, done)
}

func TestScheduler_UsesCallerID(t *testing.T) {
	ids := make(chan string, 2)
	s := New[string](WithOnStart[string](func(id, _ string) { ids <- id }))
	defer s.Close()
	r := newRecorder()

	task := r.task("a", "a", nil)
	task.ID = "run-1"
	assert.Equal(t, "run-1", s.Submit(task))
	generated := s.Submit(r.task("b", "b", nil))
	r.waitDisposed(t, 2)

	assert.Equal(t, "run-1", <-ids)
	assert.Equal(t, generated, <-ids)
	assert.NotEmpty(t, generated)
}

func TestScheduler_CancelAllWaitsForPublishInProgress(t *testing.T) {
	s := New[string]()
	defer s.Close()

	publishing := make(chan struct{})
	gate := make(chan struct{})
	var published atomic.Bool
	disposed := make(chan Disposition, 1)
	s.Submit(Task[string]{
		Key: "a",
		Action: func(context.Context) Outcome {
			return Completed(func() {
				close(publishing)
				<-gate
				published.Store(true)
			})
		},
		OnDispose: func(d Disposition) { disposed <- d },
	})
	waitClosed(t, publishing)

	returned := make(chan int, 1)
	go func() { returned <- s.CancelAll("a") }()

	select {
	case <-returned:
		t.Fatal("CancelAll returned while a publish was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)

	select {
	case n := <-returned:
		assert.Equal(t, 1, n)
	case <-time.After(waitTimeout):
		t.Fatal("CancelAll did not return after publish")
	}
	assert.True(t, published.Load())
	assert.Equal(t, Finished, <-disposed)
}
