// Package engine hosts real WebAssembly guests that speak the bridge
// protocol, using wazero with the threads proposal.
//
// # Instances
//
// The engine instantiates three kinds of modules into one runtime:
//
//	env      - synthesized provider exporting the shared linear memory
//	kwasm    - host module exporting message_to_host(lib, cmd, ptr, len) -> u32
//	main     - the guest's main instance
//	worker-N - one instance of the same guest per spawned worker
//
// Every guest instance imports env.memory, so workers share the main
// instance's heap, stacks and TLS blocks.
//
// # Guest exports
//
//	kwasm_reserve_space(n) -> ptr     scratch for inbound bytes (required)
//	kwasm_complete(token)             completion notification
//	kwasm_complete_fetch(token)       older name, used when kwasm_complete is absent
//	kwasm_web_worker_entry_point(b)   worker trampoline
//	kwasm_alloc_thread_local_storage  TLS block for workers started without one
//	set_stack_pointer(sp)             optional
//	__wasm_init_tls(base)             optional
//	__tls_size, __tls_align           globals describing the TLS block
//
// A WazeroInstance holds its lock while it runs an export. Deliveries from
// the host wait for the guest to return, one turn at a time.
package engine
