package wasmbridge

// PageSize is the WebAssembly linear memory page size.
const PageSize = 65536

// Memory represents WASM linear memory shared by every execution context of a module.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory in WASM linear memory
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Region is an allocated span of linear memory together with the alignment
// it was requested with, so it can be handed back to the same Allocator.
type Region struct {
	Base  uint32
	Size  uint32
	Align uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 {
	return r.Base + r.Size
}

// Release returns the region to a.
func (r Region) Release(a Allocator) {
	if r.Base == 0 {
		return
	}
	a.Free(r.Base, r.Size, r.Align)
}
