package host

import (
	"context"
	"sync"

	eventloop "github.com/joeycumines/go-eventloop"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Loop runs posted functions one at a time, in order, on an event loop
// goroutine. Each live execution context gets one, so inbound deliveries to
// a context never overlap and never reorder.
type Loop struct {
	name   string
	log    *zap.Logger
	loop   *eventloop.Loop
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewLoop starts a loop and returns once it is accepting work.
func NewLoop(name string, log *zap.Logger) (*Loop, error) {
	if log == nil {
		log = Logger()
	}
	el, err := eventloop.New()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "create event loop "+name)
	}
	l := &Loop{
		name: name,
		log:  log,
		loop: el,
		done: make(chan struct{}),
	}
	go l.run()

	ready := make(chan struct{})
	if err := el.Submit(func() { close(ready) }); err != nil {
		_ = el.Close()
		<-l.done
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "start event loop "+name)
	}
	<-ready
	return l, nil
}

func (l *Loop) run() {
	defer close(l.done)
	if err := l.loop.Run(context.Background()); err != nil {
		l.log.Debug("event loop stopped", zap.String("loop", l.name), zap.Error(err))
	}
}

// Post queues fn. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	return l.loop.Submit(func() { l.call(fn) }) == nil
}

// Close stops accepting work, runs what is already queued and waits for
// the loop goroutine to exit. It must not be called from a posted function.
func (l *Loop) Close() {
	l.mu.Lock()
	first := !l.closed
	l.closed = true
	l.mu.Unlock()

	if first {
		if err := l.loop.Shutdown(context.Background()); err != nil {
			l.log.Debug("event loop shutdown", zap.String("loop", l.name), zap.Error(err))
		}
	}
	<-l.done
}

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("posted function panicked", zap.String("loop", l.name), zap.Any("panic", r))
		}
	}()
	fn()
}
