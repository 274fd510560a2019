package linear

import (
	"errors"
	"sync"
	"testing"

	wasmbridge "github.com/wippyai/wasm-bridge"
	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
)

func TestHeap_AllocAlignment(t *testing.T) {
	h := NewHeap(NewMemory(1, 0), 1024)

	tests := []struct {
		size, align uint32
	}{
		{1, 1},
		{13, 4},
		{100, 16},
		{64, 4096},
		{0, 8},
	}
	for _, tt := range tests {
		ptr, err := h.Alloc(tt.size, tt.align)
		if err != nil {
			t.Fatalf("Alloc(%d, %d): %v", tt.size, tt.align, err)
		}
		if ptr == 0 || ptr < 1024 {
			t.Fatalf("Alloc(%d, %d) = %d, below heap base", tt.size, tt.align, ptr)
		}
		if ptr%tt.align != 0 {
			t.Fatalf("Alloc(%d, %d) = %d, misaligned", tt.size, tt.align, ptr)
		}
	}
}

func TestHeap_NoOverlap(t *testing.T) {
	h := NewHeap(NewMemory(1, 0), 64)

	type block struct{ ptr, size uint32 }
	var blocks []block
	for i := uint32(1); i <= 50; i++ {
		ptr, err := h.Alloc(i*7, 8)
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, block{ptr, i * 7})
	}
	for i, a := range blocks {
		for j, b := range blocks {
			if i != j && a.ptr < b.ptr+b.size && b.ptr < a.ptr+a.size {
				t.Fatalf("blocks %d and %d overlap: %+v %+v", i, j, a, b)
			}
		}
	}
}

func TestHeap_FreeCoalesces(t *testing.T) {
	mem := NewMemory(1, 1)
	h := NewHeap(mem, 0)

	a, _ := h.Alloc(1000, 8)
	b, _ := h.Alloc(1000, 8)
	c, _ := h.Alloc(1000, 8)
	h.Free(a, 1000, 8)
	h.Free(c, 1000, 8)
	h.Free(b, 1000, 8)

	if h.InUse() != 0 || h.Blocks() != 0 {
		t.Fatalf("InUse = %d, Blocks = %d after freeing everything", h.InUse(), h.Blocks())
	}
	if len(h.free) != 1 {
		t.Fatalf("free list = %v, want one coalesced span", h.free)
	}

	// The whole page minus the reserved prefix is usable again.
	big, err := h.Alloc(wasmbridge.PageSize-64, 8)
	if err != nil {
		t.Fatalf("Alloc after coalesce: %v", err)
	}
	if big != a {
		t.Fatalf("expected first-fit reuse at %d, got %d", a, big)
	}
}

func TestHeap_GrowsMemory(t *testing.T) {
	mem := NewMemory(1, 0)
	h := NewHeap(mem, 1024)

	ptr, err := h.Alloc(1<<20, 1<<16)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr%(1<<16) != 0 {
		t.Fatalf("ptr %d not 64 KiB aligned", ptr)
	}
	if uint64(ptr)+1<<20 > uint64(mem.Size()) {
		t.Fatalf("block [%d, %d) exceeds memory size %d", ptr, ptr+1<<20, mem.Size())
	}
	if err := mem.Write(ptr+(1<<20)-4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("top of block not writable: %v", err)
	}
}

func TestHeap_Exhaustion(t *testing.T) {
	h := NewHeap(NewMemory(1, 2), 1024)

	_, err := h.Alloc(4*wasmbridge.PageSize, 8)
	if !errors.Is(err, bridgeerrors.ErrAllocation) {
		t.Fatalf("got %v, want allocation error", err)
	}
}

func TestHeap_InvalidAlign(t *testing.T) {
	h := NewHeap(NewMemory(1, 0), 1024)
	if _, err := h.Alloc(8, 3); err == nil {
		t.Fatal("non power of two alignment should fail")
	}
}

func TestHeap_FreeUnknownIgnored(t *testing.T) {
	h := NewHeap(NewMemory(1, 0), 1024)
	p, _ := h.Alloc(16, 8)
	h.Free(p+1, 16, 8)
	if !h.Allocated(p) {
		t.Fatal("freeing an unknown address must not release other blocks")
	}
}

func TestHeap_Concurrent(t *testing.T) {
	h := NewHeap(NewMemory(1, 0), 1024)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p, err := h.Alloc(64, 16)
				if err != nil {
					t.Error(err)
					return
				}
				h.Free(p, 64, 16)
			}
		}()
	}
	wg.Wait()

	if h.Blocks() != 0 {
		t.Fatalf("Blocks = %d, want 0", h.Blocks())
	}
}
