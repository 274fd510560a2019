// Package hostcall defines the narrow boundary between a module and its host.
//
// Outbound, the module has a single primitive:
//
//	message(library, command, ptr, len) -> u32
//
// where the payload is a byte range of linear memory and 0 is the reserved
// "no result" answer. Channel wraps it for one execution context.
//
// Inbound, the host can reserve scratch space in a context, complete a
// correlation token there, or enter a worker trampoline. Caller exposes
// those entry points; Deliver packages the reserve/write/complete sequence.
//
// Library 1 is built in. Its command 0 registers another library by source
// name and returns the id to use for it afterwards; Libraries caches those
// ids per module.
package hostcall
