package hostcall

import (
	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Drainer is the module side of a scratch buffer.
type Drainer interface {
	Take() ([]byte, error)
}

// Channel is the module's only way to reach the host. Each execution
// context owns one.
type Channel struct {
	host    Host
	caller  Caller
	alloc   wasmbridge.Allocator
	scratch Drainer
}

// NewChannel creates the channel for caller. Payloads are staged in linear
// memory obtained from alloc; results written back by the host are drained
// from scratch.
func NewChannel(host Host, caller Caller, alloc wasmbridge.Allocator, scratch Drainer) *Channel {
	return &Channel{host: host, caller: caller, alloc: alloc, scratch: scratch}
}

// Caller returns the context this channel belongs to.
func (c *Channel) Caller() Caller {
	return c.caller
}

// Call sends payload to command on library and returns the host's result.
// It never fails: 0 is the host's way of saying there is no result.
// Failure to stage the payload is fatal and panics.
func (c *Channel) Call(library, command uint32, payload []byte) uint32 {
	if len(payload) == 0 {
		return c.host.Message(c.caller, library, command, 0, 0)
	}

	size := uint32(len(payload))
	ptr, err := c.alloc.Alloc(size, 1)
	if err != nil {
		panic(errors.AllocationFailed(errors.PhaseCall, size, 1, err))
	}
	defer c.alloc.Free(ptr, size, 1)

	if err := c.caller.Memory().Write(ptr, payload); err != nil {
		panic(errors.Wrap(errors.PhaseCall, errors.KindOutOfBounds, err, "stage payload"))
	}
	return c.host.Message(c.caller, library, command, ptr, size)
}

// CallWithResult issues a call whose handler writes its answer into scratch
// before returning, and drains that answer. The caller's lock is held for
// the whole exchange so no inbound delivery can interleave.
func (c *Channel) CallWithResult(library, command uint32, payload []byte) ([]byte, uint32) {
	c.caller.Lock()
	defer c.caller.Unlock()

	result := c.Call(library, command, payload)
	data, err := c.scratch.Take()
	if err != nil {
		return nil, result
	}
	return data, result
}

// Lookup issues a call and reports a 0 result as absent.
func (c *Channel) Lookup(library, command uint32, payload []byte) (uint32, bool) {
	r := c.Call(library, command, payload)
	return r, r != 0
}
