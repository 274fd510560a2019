package completion

import (
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/task"
)

type state uint8

const (
	stateNotStarted state = iota
	stateRunning
	stateCompleted
)

func (s state) String() string {
	switch s {
	case stateNotStarted:
		return "not-started"
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	}
	return "unknown"
}

// Record is the shared state of one host-bridged operation. While the host
// holds its token, the token table owns the record; the operation that
// created it may already be gone.
type Record struct {
	name      string
	waker     task.Waker
	err       error
	result    []byte
	token     uint32
	state     state
	abandoned bool
	mu        sync.Mutex
}

// Name returns the operation name the record was created for.
func (r *Record) Name() string {
	return r.name
}

// Token returns the token the record was issued under, or 0 before issue.
func (r *Record) Token() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// Drop fails the operation with a closed error. The token table calls it
// when the module discards records the host never completed.
func (r *Record) Drop() {
	r.finish(nil, errors.Closed(errors.PhaseComplete, "completion bridge"))
}

// finish stores the outcome and wakes the waiting task, if any.
// The lock is released before waking.
func (r *Record) finish(data []byte, err error) {
	r.mu.Lock()
	if r.state == stateCompleted {
		r.mu.Unlock()
		return
	}
	r.state = stateCompleted
	r.result, r.err = data, err
	w := r.waker
	r.waker = nil
	r.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}
