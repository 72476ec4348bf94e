// Package runloop provides the single-threaded cooperative task queue
// that backs one extension group. Tasks posted from one thread execute
// in post order; tasks posted from different threads execute in an order
// consistent with the happens-before of their posts. Timers fire as
// ordinary tasks and are cancelled when the loop stops.
package runloop

import (
	"container/list"
	"sync"
	"time"

	"github.com/c360/flowmesh/errors"
)

// Task is one unit of work owned by the loop. The loop guarantees
// one-shot execution: a task runs exactly once or, when a post fails,
// never runs at all and the caller reclaims whatever it carried.
type Task func()

// Runloop is a single-threaded task queue. Run executes tasks on the
// calling goroutine until Stop is observed and the queue has drained of
// non-timer tasks.
type Runloop struct {
	mu      sync.Mutex
	wake    *sync.Cond
	queue   *list.List
	stopped bool
	done    chan struct{}

	timerMu sync.Mutex
	timers  map[*Timer]struct{}
}

// Timer is the cancellation handle of a pending timer.
type Timer struct {
	loop  *Runloop
	t     *time.Timer
	fired bool
}

// Cancel stops the timer. A timer that already fired or was already
// cancelled is a no-op.
func (tm *Timer) Cancel() {
	tm.loop.timerMu.Lock()
	defer tm.loop.timerMu.Unlock()
	if _, ok := tm.loop.timers[tm]; !ok {
		return
	}
	delete(tm.loop.timers, tm)
	tm.t.Stop()
}

// New creates a runloop. The loop does not execute anything until Run
// is called.
func New() *Runloop {
	rl := &Runloop{
		queue:  list.New(),
		done:   make(chan struct{}),
		timers: map[*Timer]struct{}{},
	}
	rl.wake = sync.NewCond(&rl.mu)
	return rl
}

// PostTaskTail appends a task to the queue. It fails with closed after
// Stop has been observed; the caller must then consider the task
// not-executed and reclaim any owned data it carried.
func (rl *Runloop) PostTaskTail(task Task) error {
	return rl.post(task, false)
}

// PostTaskFront prepends a task to the queue, ahead of already-queued
// work. Ordering between front posts from distinct threads is the
// reverse of their happens-before order.
func (rl *Runloop) PostTaskFront(task Task) error {
	return rl.post(task, true)
}

func (rl *Runloop) post(task Task, front bool) error {
	if task == nil {
		return errors.New(errors.CodeInvalidArgument, "nil task")
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.stopped {
		return errors.New(errors.CodeClosed, "runloop is stopped")
	}
	if front {
		rl.queue.PushFront(task)
	} else {
		rl.queue.PushBack(task)
	}
	rl.wake.Signal()
	return nil
}

// PostTimer schedules a task to be posted to the queue tail after delay.
// The returned handle cancels the timer; pending timers are cancelled
// when the loop stops and their tasks never run.
func (rl *Runloop) PostTimer(delay time.Duration, task Task) (*Timer, error) {
	if task == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "nil task")
	}
	rl.mu.Lock()
	stopped := rl.stopped
	rl.mu.Unlock()
	if stopped {
		return nil, errors.New(errors.CodeClosed, "runloop is stopped")
	}

	tm := &Timer{loop: rl}
	rl.timerMu.Lock()
	rl.timers[tm] = struct{}{}
	rl.timerMu.Unlock()

	tm.t = time.AfterFunc(delay, func() {
		rl.timerMu.Lock()
		if _, ok := rl.timers[tm]; !ok {
			rl.timerMu.Unlock()
			return
		}
		delete(rl.timers, tm)
		tm.fired = true
		rl.timerMu.Unlock()
		// A stopped loop rejects the post; the timer task is dropped,
		// which is the documented cancellation behavior.
		_ = rl.PostTaskTail(task)
	})
	return tm, nil
}

// Stop requests loop termination. Already-queued non-timer tasks still
// run; pending timers are cancelled. Stop is safe from any thread and
// idempotent.
func (rl *Runloop) Stop() {
	rl.mu.Lock()
	if rl.stopped {
		rl.mu.Unlock()
		return
	}
	rl.stopped = true
	rl.wake.Broadcast()
	rl.mu.Unlock()

	rl.timerMu.Lock()
	for tm := range rl.timers {
		tm.t.Stop()
		delete(rl.timers, tm)
	}
	rl.timerMu.Unlock()
}

// Run executes tasks on the calling goroutine. It returns only after
// Stop is observed and the queue has drained.
func (rl *Runloop) Run() {
	for {
		rl.mu.Lock()
		for rl.queue.Len() == 0 && !rl.stopped {
			rl.wake.Wait()
		}
		if rl.queue.Len() == 0 && rl.stopped {
			rl.mu.Unlock()
			close(rl.done)
			return
		}
		front := rl.queue.Front()
		rl.queue.Remove(front)
		rl.mu.Unlock()

		// The queue mutex is never held across user code.
		front.Value.(Task)()
	}
}

// Done is closed once Run has returned.
func (rl *Runloop) Done() <-chan struct{} {
	return rl.done
}

// Len returns the number of queued tasks, for tests and introspection.
func (rl *Runloop) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.queue.Len()
}
