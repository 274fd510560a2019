package task

import (
	"context"
)

// Waker resumes a suspended task. Wake may be called from any goroutine,
// more than once, and after the task has finished.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to Waker.
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

// Poll is the outcome of one Future.Poll call.
type Poll[T any] struct {
	Value T
	Err   error
	Ready bool
}

// Ready returns a completed poll result.
func Ready[T any](v T, err error) Poll[T] {
	return Poll[T]{Value: v, Err: err, Ready: true}
}

// Pending returns a not-ready poll result.
func Pending[T any]() Poll[T] {
	return Poll[T]{}
}

// Future is a value that becomes available later.
//
// Poll must not block. When it returns Pending it must arrange for w to be
// woken once progress is possible. A future must not be polled again after
// it returned a ready result.
type Future[T any] interface {
	Poll(w Waker) Poll[T]
}

// Dropper is implemented by futures that want to know when their task is
// abandoned before completion.
type Dropper interface {
	Drop()
}

// Signal is a Waker backed by a one-slot channel. Wakes that arrive while a
// previous one is unconsumed are coalesced.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Wake records a wake-up.
func (s *Signal) Wake() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel that receives wake-ups.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// BlockOn polls fut until it is ready, sleeping between wake-ups.
// If ctx ends first, fut is dropped and ctx's error returned.
func BlockOn[T any](ctx context.Context, fut Future[T]) (T, error) {
	sig := NewSignal()
	for {
		p := fut.Poll(sig)
		if p.Ready {
			return p.Value, p.Err
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			if d, ok := fut.(Dropper); ok {
				d.Drop()
			}
			var zero T
			return zero, ctx.Err()
		}
	}
}

// FutureFunc adapts a poll function to Future.
type FutureFunc[T any] func(w Waker) Poll[T]

func (f FutureFunc[T]) Poll(w Waker) Poll[T] { return f(w) }
