// Package wasmbridge lets a module compiled to a linear-memory target run
// concurrently and asynchronously on top of a host that offers only a
// synchronous numeric call interface and an event loop.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with Memory, Allocator and Region
//	├── hostcall/        Host call channel, built-in commands, library registry
//	├── scratch/         Per-context inbound staging buffer
//	├── task/            Wakers, futures and a single-context executor
//	├── completion/      Async completion bridge (token hand-off, resume)
//	├── worker/          Worker stack/TLS allocation and entry trampoline
//	├── module/          In-process module side tying the pieces together
//	├── host/            Reference host: event loop, libraries, workers
//	├── engine/          wazero host for real wasm guests
//	├── linear/          Growable linear memory and heap allocator
//	├── resource/        Handle tables for values leaked across the boundary
//	├── wasm/            Binary encoding helpers and module builder
//	├── runtime/         High-level facade
//	└── errors/          Structured error types
//
// # Quick Start
//
//	rt, err := runtime.New(runtime.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	main := rt.Main()
//	main.Log("hello")
//	main.Spawn(func(w *module.Context) {
//	    w.Log("from a worker")
//	})
//	body, status, err := main.Fetch(ctx, "https://example.com")
//
// # Boundary Protocol
//
// The module reaches the host only through message(library, command, ptr, len)
// which returns one u32, where 0 means no result. The host reaches the module
// through three entry points: reserve scratch space, complete a token, and
// enter a worker. Values that cross the boundary (completion records, worker
// bundles) are leaked into handle tables and reclaimed exactly once.
//
// # Memory Model
//
// Linear memory only grows. Worker stacks have no guard page: a stack
// overflow silently corrupts the memory below the stack region.
package wasmbridge
