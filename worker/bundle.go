package worker

import (
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
)

// Bundle is everything a new worker needs: the closure to run and the
// stack and TLS regions it runs on. The worker side becomes its sole owner
// at start-up and releases both regions after the closure returns.
type Bundle[T any] struct {
	entry func(T)
	alloc wasmbridge.Allocator
	Stack wasmbridge.Region
	TLS   wasmbridge.Region
	mu    sync.Mutex
	freed bool
}

// take empties the closure slot. A second take returns nil.
func (b *Bundle[T]) take() func(T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry
	b.entry = nil
	return e
}

// StackTop is the initial stack pointer: the stack grows down from the
// region's high end.
func (b *Bundle[T]) StackTop() uint32 {
	return b.Stack.End()
}

// Drop releases the stack and TLS regions. It runs once.
func (b *Bundle[T]) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return
	}
	b.freed = true
	b.entry = nil
	b.Stack.Release(b.alloc)
	b.TLS.Release(b.alloc)
}
