// Package scratch implements the per-context staging area the host writes
// inbound bytes into before it calls into the module.
//
// The host first asks for n bytes with Reserve, writes its payload at the
// returned address, then invokes an entry point (for example a completion)
// that drains the bytes with Take. Each execution context owns one Buffer,
// so responses aimed at different contexts never share storage.
package scratch

import (
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Buffer is a resizable byte region in linear memory.
type Buffer struct {
	mem    wasmbridge.Memory
	alloc  wasmbridge.Allocator
	region wasmbridge.Region
	mu     sync.Mutex
}

// New creates an empty buffer whose storage comes from alloc.
func New(mem wasmbridge.Memory, alloc wasmbridge.Allocator) *Buffer {
	return &Buffer{mem: mem, alloc: alloc}
}

// Reserve discards the current contents and makes room for exactly n zeroed
// bytes. The returned address stays valid until the next Reserve or Take.
func (b *Buffer) Reserve(n uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.region.Release(b.alloc)
	b.region = wasmbridge.Region{}

	ptr, err := b.alloc.Alloc(n, 1)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseScratch, n, 1, err)
	}
	if n > 0 {
		if err := b.mem.Write(ptr, make([]byte, n)); err != nil {
			b.alloc.Free(ptr, n, 1)
			return 0, errors.Wrap(errors.PhaseScratch, errors.KindOutOfBounds, err, "clear scratch region")
		}
	}
	b.region = wasmbridge.Region{Base: ptr, Size: n, Align: 1}
	return ptr, nil
}

// Take returns the buffer's contents as an owned slice and leaves the
// buffer empty. An empty buffer yields an empty, non-nil slice.
func (b *Buffer) Take() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.region
	b.region = wasmbridge.Region{}
	if r.Base == 0 {
		return []byte{}, nil
	}
	defer r.Release(b.alloc)

	if r.Size == 0 {
		return []byte{}, nil
	}
	data, err := b.mem.Read(r.Base, r.Size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseScratch, errors.KindOutOfBounds, err, "read scratch region")
	}
	return data, nil
}

// Len returns the size of the current reservation.
func (b *Buffer) Len() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.region.Size
}

// Release frees any reserved storage. The buffer stays usable.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.region.Release(b.alloc)
	b.region = wasmbridge.Region{}
}
