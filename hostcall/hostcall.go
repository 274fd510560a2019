package hostcall

import (
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Host receives messages from the module. A result of 0 means the host has
// no object or result for the request.
type Host interface {
	Message(caller Caller, library, command, ptr, length uint32) uint32
}

// Caller is one execution context of the module as the host sees it.
//
// ReserveScratch and Complete are inbound entry points: the host must hold
// the caller's lock around them, either by taking it itself (see Deliver)
// or because the module holds it while the host is servicing a message that
// returns data. EnterWorker must be invoked without the lock, on the
// goroutine that becomes the new context.
type Caller interface {
	sync.Locker

	// Name identifies the context in logs ("main", "worker-3").
	Name() string

	// Memory is the module's linear memory, shared by every context.
	Memory() wasmbridge.Memory

	// ReserveScratch makes room for n inbound bytes and returns their address.
	ReserveScratch(n uint32) (uint32, error)

	// Complete notifies the completion bridge that token's result is in scratch.
	Complete(token uint32) error

	// EnterWorker runs the worker trampoline for bundle.
	EnterWorker(bundle uint32) error
}

// Instance creates execution contexts for newly spawned workers.
type Instance interface {
	NewContext(stackTop, tlsBase uint32) (Caller, error)
}

// TLSReporter is implemented by instances that know their own
// thread-local storage layout.
type TLSReporter interface {
	TLSLayout() (size, align uint32)
}

// Write stages data in c's scratch buffer. The caller's lock must already be held.
func Write(c Caller, data []byte) error {
	ptr, err := c.ReserveScratch(uint32(len(data)))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.Memory().Write(ptr, data); err != nil {
		return errors.Wrap(errors.PhaseScratch, errors.KindOutOfBounds, err, "write scratch")
	}
	return nil
}

// Forwarder is implemented by callers that hand their inbound calls to
// another caller once they have exited. Forward is called with the
// caller's lock held and returns nil while the caller is still live.
type Forwarder interface {
	Forward() Caller
}

// Deliver hands an asynchronous result to the context that started the
// operation: it locks c, stages data in scratch and completes token.
// A context that has exited and forwards its inbound calls is skipped in
// favour of its successor.
func Deliver(c Caller, token uint32, data []byte) error {
	c.Lock()
	if f, ok := c.(Forwarder); ok {
		if next := f.Forward(); next != nil {
			c.Unlock()
			return Deliver(next, token, data)
		}
	}
	defer c.Unlock()

	if err := Write(c, data); err != nil {
		return err
	}
	return c.Complete(token)
}
