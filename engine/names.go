package engine

// Names shared with guests built for the bridge protocol.
const (
	// HostModule is the import module of the host call.
	HostModule = "kwasm"
	// HostMessage is message_to_host(library, command, ptr, len) -> result.
	HostMessage = "message_to_host"

	// MemoryModule and MemoryName locate the shared linear memory.
	MemoryModule = "env"
	MemoryName   = "memory"

	// MainName is the module name of the main instance; workers are
	// "worker-1", "worker-2", ...
	MainName = "main"

	exportReserve       = "kwasm_reserve_space"
	exportComplete      = "kwasm_complete"
	exportCompleteFetch = "kwasm_complete_fetch"
	exportWorkerEntry   = "kwasm_web_worker_entry_point"
	exportAllocTLS      = "kwasm_alloc_thread_local_storage"
	exportSetStack      = "set_stack_pointer"
	exportInitTLS       = "__wasm_init_tls"

	globalTLSSize  = "__tls_size"
	globalTLSAlign = "__tls_align"
)
