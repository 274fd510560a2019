package hostcall

import (
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
)

// Libraries remembers the id the host assigned to each library source, so a
// library is registered at most once per module.
type Libraries struct {
	ids map[string]uint32
	mu  sync.Mutex
}

// NewLibraries creates an empty registry.
func NewLibraries() *Libraries {
	return &Libraries{ids: make(map[string]uint32)}
}

// Get returns the id for source, registering it through ch on first use.
// A host that answers the registration with 0 yields KindNoResult and
// nothing is cached, so a later call retries.
func (l *Libraries) Get(ch *Channel, source string) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.ids[source]; ok {
		return id, nil
	}
	id := ch.Call(LibraryBuiltin, CmdRegisterLibrary, []byte(source))
	if id == 0 {
		return 0, errors.New(errors.PhaseCall, errors.KindNoResult).
			Path("library", source).
			Detail("host rejected library registration").
			Build()
	}
	l.ids[source] = id
	return id, nil
}

// Len returns the number of registered libraries.
func (l *Libraries) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
