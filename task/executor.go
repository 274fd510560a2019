package task

import (
	"context"
	"sync"
)

type runnable interface {
	// poll runs the task once and reports whether it finished.
	poll(w Waker) bool
	drop()
}

type entry struct {
	exec   *Executor
	task   runnable
	queued bool
	done   bool
}

func (e *entry) Wake() {
	e.exec.schedule(e)
}

// Executor runs tasks for one execution context. Tasks are polled only by
// the goroutine calling Run or RunUntilStalled; wake-ups may come from anywhere.
type Executor struct {
	queue  []*entry
	live   int
	notify *Signal
	mu     sync.Mutex
}

// NewExecutor creates an empty executor.
func NewExecutor() *Executor {
	return &Executor{notify: NewSignal()}
}

func (x *Executor) schedule(e *entry) {
	x.mu.Lock()
	if e.done || e.queued {
		x.mu.Unlock()
		return
	}
	e.queued = true
	x.queue = append(x.queue, e)
	x.mu.Unlock()
	x.notify.Wake()
}

// Handle observes a spawned task.
type Handle[T any] struct {
	entry *entry
	done  chan struct{}
	value T
	err   error
}

// Done is closed when the task completes.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Result returns the task's result once Done is closed.
func (h *Handle[T]) Result() (T, error) {
	<-h.done
	return h.value, h.err
}

// Cancel abandons the task. It is never polled again and its future is
// dropped. Cancel after completion is a no-op. It must be called from the
// goroutine driving the executor.
func (h *Handle[T]) Cancel() {
	x := h.entry.exec
	x.mu.Lock()
	if h.entry.done {
		x.mu.Unlock()
		return
	}
	h.entry.done = true
	x.live--
	x.mu.Unlock()
	h.entry.task.drop()
}

type futureTask[T any] struct {
	fut    Future[T]
	handle *Handle[T]
}

func (t *futureTask[T]) poll(w Waker) bool {
	p := t.fut.Poll(w)
	if !p.Ready {
		return false
	}
	t.handle.value, t.handle.err = p.Value, p.Err
	close(t.handle.done)
	return true
}

func (t *futureTask[T]) drop() {
	if d, ok := t.fut.(Dropper); ok {
		d.Drop()
	}
}

// Spawn queues fut on x and returns a handle to its result.
func Spawn[T any](x *Executor, fut Future[T]) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}
	e := &entry{exec: x, task: &futureTask[T]{fut: fut, handle: h}}
	h.entry = e

	x.mu.Lock()
	x.live++
	x.mu.Unlock()
	x.schedule(e)
	return h
}

// RunUntilStalled polls queued tasks until none are ready and returns how
// many polls were made.
func (x *Executor) RunUntilStalled() int {
	polls := 0
	for {
		x.mu.Lock()
		if len(x.queue) == 0 {
			x.mu.Unlock()
			return polls
		}
		e := x.queue[0]
		x.queue = x.queue[1:]
		e.queued = false
		skip := e.done
		x.mu.Unlock()

		if skip {
			continue
		}
		polls++
		if e.task.poll(e) {
			x.mu.Lock()
			if !e.done {
				e.done = true
				x.live--
			}
			x.mu.Unlock()
		}
	}
}

// Live returns the number of spawned tasks that have not finished or been cancelled.
func (x *Executor) Live() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.live
}

// Run drives tasks until all have finished or ctx ends.
func (x *Executor) Run(ctx context.Context) error {
	for {
		x.RunUntilStalled()
		if x.Live() == 0 {
			return nil
		}
		select {
		case <-x.notify.C():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
