package linear

import (
	"encoding/binary"
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// MaxPages is the largest page count a 32-bit linear memory can address
// while its byte size still fits in a uint32.
const MaxPages = 65535

// Memory is a growable byte-addressed linear memory shared by every
// execution context of one module. Reads return copies.
type Memory struct {
	buf      []byte
	maxPages uint32
	mu       sync.RWMutex
}

var _ wasmbridge.Memory = (*Memory)(nil)

// NewMemory creates a memory of initialPages that may grow up to maxPages.
// A maxPages of 0 means MaxPages.
func NewMemory(initialPages, maxPages uint32) *Memory {
	if maxPages == 0 || maxPages > MaxPages {
		maxPages = MaxPages
	}
	if initialPages > maxPages {
		initialPages = maxPages
	}
	return &Memory{
		buf:      make([]byte, int(initialPages)*wasmbridge.PageSize),
		maxPages: maxPages,
	}
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.buf))
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return m.Size() / wasmbridge.PageSize
}

// Grow adds delta pages and returns the previous page count.
// It reports false when the memory would exceed its maximum.
func (m *Memory) Grow(delta uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := uint32(len(m.buf) / wasmbridge.PageSize)
	if uint64(prev)+uint64(delta) > uint64(m.maxPages) {
		return prev, false
	}
	if delta == 0 {
		return prev, true
	}
	grown := make([]byte, int(prev+delta)*wasmbridge.PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return prev, true
}

func (m *Memory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, length, uint32(len(m.buf)))
	}
	return nil
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.buf[offset:])
	return out, nil
}

// Write copies data to offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], value)
	return nil
}

// Zero clears length bytes at offset.
func (m *Memory) Zero(offset, length uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(offset, length); err != nil {
		return err
	}
	clear(m.buf[offset : offset+length])
	return nil
}
