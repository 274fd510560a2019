package host

import (
	"github.com/wippyai/wasm-bridge/completion"
	"github.com/wippyai/wasm-bridge/hostcall"
)

// Names of the bundled libraries.
const (
	FetchLibrary = completion.FetchLibrary
	TimerLibrary = completion.TimerLibrary
)

// Call is one message addressed to a registered library.
type Call struct {
	Caller  hostcall.Caller
	Command uint32
	Payload []byte
}

// Library handles the commands of one registered library. Handle runs on
// the module's goroutine and must not block; asynchronous work finishes
// with Host.Deliver.
type Library interface {
	Handle(call Call) uint32
	Close() error
}

// Factory creates a library the first time a module registers it.
type Factory func(h *Host) Library
