// Package worker creates additional execution contexts that share the
// module's linear memory.
//
// Spawn allocates a stack (1 MiB, 64 KiB aligned by default) and a TLS
// region sized by the host-reported layout, leaks a Bundle holding both and
// the entry closure into the handle table, and asks the host to start a
// context with [bundle, stackTop, tlsBase]. The host creates the context
// and calls the trampoline, Enter, on it. Enter reclaims the bundle, runs
// the closure exactly once, and only then releases the stack and TLS.
//
// The TLS layout is fetched from the host once per process and cached.
package worker
