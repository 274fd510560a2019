package hostcall

// Reserved library ids.
const (
	// LibraryNull never answers; calls to it return 0.
	LibraryNull uint32 = 0

	// LibraryBuiltin is always present and bootstraps every other library.
	LibraryBuiltin uint32 = 1
)

// Commands of the built-in library.
const (
	CmdRegisterLibrary uint32 = iota // payload: source name, result: library id
	CmdLog                           // payload: utf-8 text
	CmdLogError                      // payload: utf-8 text
	CmdTLSSize                       // result: bytes of TLS per context
	CmdTLSAlign                      // result: TLS alignment
	CmdParallelism                   // result: available parallelism
	CmdSpawnWorker                   // payload: [bundle, stackTop, tlsBase]
)

// CommandName returns a readable name for a built-in command.
func CommandName(cmd uint32) string {
	switch cmd {
	case CmdRegisterLibrary:
		return "register_library"
	case CmdLog:
		return "log"
	case CmdLogError:
		return "log_error"
	case CmdTLSSize:
		return "tls_size"
	case CmdTLSAlign:
		return "tls_align"
	case CmdParallelism:
		return "available_parallelism"
	case CmdSpawnWorker:
		return "spawn_worker"
	}
	return "unknown"
}
