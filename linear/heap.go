package linear

import (
	"math/bits"
	"sort"
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Grower is the part of a linear memory the heap needs to extend itself.
type Grower interface {
	Size() uint32
	Grow(deltaPages uint32) (uint32, bool)
}

type span struct {
	start, end uint32
}

// Heap is a first-fit allocator over [base, memory size) that grows the
// memory when no free span fits. Adjacent free spans are coalesced.
//
// Zero-sized requests receive a distinct one-byte block so every successful
// Alloc returns a unique non-zero address.
type Heap struct {
	mem   Grower
	free  []span
	live  map[uint32]uint32
	top   uint32
	inUse uint64
	mu    sync.Mutex
}

var _ wasmbridge.Allocator = (*Heap)(nil)

// NewHeap manages the memory above base. Addresses below base are never
// handed out, which keeps 0 free to mean "no allocation".
func NewHeap(mem Grower, base uint32) *Heap {
	if base == 0 {
		base = 8
	}
	h := &Heap{
		mem:  mem,
		live: make(map[uint32]uint32),
		top:  mem.Size(),
	}
	if h.top > base {
		h.free = append(h.free, span{start: base, end: h.top})
	} else {
		h.top = base
	}
	return h
}

func alignUp(v, align uint32) uint64 {
	return (uint64(v) + uint64(align) - 1) &^ (uint64(align) - 1)
}

// Alloc returns the address of size bytes aligned to align.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	if bits.OnesCount32(align) != 1 {
		return 0, errors.InvalidInput(errors.PhaseAlloc, "alignment must be a power of two")
	}
	n := max(size, 1)

	h.mu.Lock()
	defer h.mu.Unlock()

	if ptr, ok := h.take(n, align); ok {
		return ptr, nil
	}
	if err := h.extend(n, align); err != nil {
		return 0, err
	}
	if ptr, ok := h.take(n, align); ok {
		return ptr, nil
	}
	return 0, errors.AllocationFailed(errors.PhaseAlloc, size, align, nil)
}

// take carves n bytes out of the first span that fits. Caller holds mu.
func (h *Heap) take(n, align uint32) (uint32, bool) {
	for i, s := range h.free {
		start := alignUp(s.start, align)
		if start+uint64(n) > uint64(s.end) {
			continue
		}
		ptr := uint32(start)
		end := ptr + n

		var rest []span
		if ptr > s.start {
			rest = append(rest, span{s.start, ptr})
		}
		if end < s.end {
			rest = append(rest, span{end, s.end})
		}
		h.free = append(h.free[:i], append(rest, h.free[i+1:]...)...)

		h.live[ptr] = n
		h.inUse += uint64(n)
		return ptr, true
	}
	return 0, false
}

// extend grows memory so a block of n bytes at align fits past the top.
func (h *Heap) extend(n, align uint32) error {
	need := uint64(n) + uint64(align)
	pages := (need + wasmbridge.PageSize - 1) / wasmbridge.PageSize
	if pages > MaxPages {
		return errors.AllocationFailed(errors.PhaseAlloc, n, align, nil)
	}
	if _, ok := h.mem.Grow(uint32(pages)); !ok {
		return errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Detail("grow memory by %d pages for %d bytes (align %d)", pages, n, align).
			Build()
	}

	start := h.top
	h.top = h.mem.Size()
	h.insert(span{start: start, end: h.top})
	return nil
}

// insert adds s to the sorted free list, merging with neighbours.
func (h *Heap) insert(s span) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].start >= s.start })

	if i > 0 && h.free[i-1].end == s.start {
		i--
		s.start = h.free[i].start
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
	if i < len(h.free) && h.free[i].start == s.end {
		s.end = h.free[i].end
		h.free = append(h.free[:i], h.free[i+1:]...)
	}

	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s
}

// Free returns the block at ptr. Unknown addresses are ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.live[ptr]
	if !ok {
		return
	}
	delete(h.live, ptr)
	h.inUse -= uint64(n)
	h.insert(span{start: ptr, end: ptr + n})
}

// Allocated reports whether ptr is the start of a live block.
func (h *Heap) Allocated(ptr uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.live[ptr]
	return ok
}

// InUse returns the number of bytes currently allocated.
func (h *Heap) InUse() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Blocks returns the number of live allocations.
func (h *Heap) Blocks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}
