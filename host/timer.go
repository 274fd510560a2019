package host

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/completion"
)

// timerLibrary completes sleep requests with an empty payload.
type timerLibrary struct {
	host   *Host
	timers map[*time.Timer]struct{}
	closed bool
	mu     sync.Mutex
}

func newTimerLibrary(h *Host) Library {
	return &timerLibrary{host: h, timers: make(map[*time.Timer]struct{})}
}

func (l *timerLibrary) Handle(call Call) uint32 {
	if call.Command != completion.CmdSleep {
		return 0
	}
	token, d, err := completion.ParseSleepRequest(call.Payload)
	if err != nil {
		l.host.log.Warn("malformed sleep request", zap.String("context", call.Caller.Name()), zap.Error(err))
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.host.Deliver(call.Caller, token, nil)
	})
	l.timers[t] = struct{}{}
	return 1
}

// Close stops pending timers. Their operations never complete.
func (l *timerLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for t := range l.timers {
		t.Stop()
	}
	l.timers = nil
	return nil
}

// Pending returns the number of running timers.
func (l *timerLibrary) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}
