// Package linear provides an in-process linear memory and a heap allocator
// over it.
//
// Memory behaves like a WebAssembly memory: byte addressed, little endian,
// growable in 64 KiB pages, never shrinking. Heap hands out aligned blocks
// and grows the memory when it runs out, which is how worker stacks, TLS
// regions, scratch buffers and call payloads are placed.
package linear
