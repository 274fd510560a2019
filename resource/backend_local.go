package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("resource backend closed")
	ErrFull   = errors.New("resource backend full")
)

// LocalBackend is an in-memory resource backend with generation-checked handles.
type LocalBackend struct {
	entries  []entry
	freeList []int
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value  any
	typeID uint32
	gen    uint32
	valid  bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]int, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(typeID uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	if n := len(b.freeList); n > 0 {
		idx := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		e := &b.entries[idx]
		e.typeID = typeID
		e.value = value
		e.valid = true
		return makeHandle(idx, e.gen), nil
	}

	if len(b.entries) >= MaxEntries {
		return 0, ErrFull
	}
	b.entries = append(b.entries, entry{typeID: typeID, value: value, valid: true})
	return makeHandle(len(b.entries)-1, 0), nil
}

// lookup returns the live entry for handle. Caller holds mu.
func (b *LocalBackend) lookup(handle Handle) (*entry, int) {
	if handle == 0 {
		return nil, -1
	}
	idx := handle.index()
	if idx < 0 || idx >= len(b.entries) {
		return nil, -1
	}
	e := &b.entries[idx]
	if !e.valid || e.gen != handle.gen() {
		return nil, -1
	}
	return e, idx
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, _ := b.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Take removes a resource and returns its value and type ID.
func (b *LocalBackend) Take(handle Handle) (any, uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, idx := b.lookup(handle)
	if e == nil {
		return nil, 0, false
	}

	value, typeID := e.value, e.typeID
	e.valid = false
	e.value = nil
	e.gen = (e.gen + 1) & genMask
	b.freeList = append(b.freeList, idx)

	return value, typeID, true
}

// TakeTyped removes a resource only if it has typeID. The check and the
// removal happen under one lock.
func (b *LocalBackend) TakeTyped(handle Handle, typeID uint32) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, idx := b.lookup(handle)
	if e == nil || e.typeID != typeID {
		return nil, false
	}

	value := e.value
	e.valid = false
	e.value = nil
	e.gen = (e.gen + 1) & genMask
	b.freeList = append(b.freeList, idx)

	return value, true
}

// TypeID returns the type ID for a handle.
func (b *LocalBackend) TypeID(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, _ := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// Close releases all resources.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for i := range b.entries {
		if b.entries[i].valid {
			if d, ok := b.entries[i].value.(Dropper); ok {
				d.Drop()
			}
			b.entries[i].valid = false
			b.entries[i].value = nil
		}
	}

	b.entries = nil
	b.freeList = nil
	return nil
}

// Len returns the number of active resources.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries) - len(b.freeList)
}

// Each iterates over all active resources.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeHandle(i, e.gen), e.typeID, e.value) {
				break
			}
		}
	}
}
