package host

import (
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostcall"
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host's logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		h.log = l
	}
}

// WithHTTPClient sets the client used by the fetch library.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Host) {
		h.client = c
	}
}

// WithLibrary makes a library available for registration under name.
func WithLibrary(name string, f Factory) Option {
	return func(h *Host) {
		h.factories[name] = f
	}
}

// Host is the reference host: it answers the module's messages, creates
// worker contexts and delivers asynchronous completions.
type Host struct {
	cfg       Config
	log       *zap.Logger
	client    *http.Client
	factories map[string]Factory

	inst hostcall.Instance

	libs  map[uint32]Library
	ids   map[string]uint32
	next  uint32
	loops map[hostcall.Caller]*Loop
	mu    sync.Mutex

	workers   sync.WaitGroup
	active    atomic.Int32
	spawned   atomic.Uint64
	refused   atomic.Uint64
	panicked  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	late      atomic.Uint64
	closed    atomic.Bool
}

var _ hostcall.Host = (*Host)(nil)

// New creates a host. The fetch and timer libraries are always available.
func New(cfg Config, opts ...Option) *Host {
	h := &Host{
		cfg:       cfg.withDefaults(),
		log:       Logger(),
		factories: make(map[string]Factory),
		libs:      make(map[uint32]Library),
		ids:       make(map[string]uint32),
		next:      hostcall.LibraryBuiltin + 1,
		loops:     make(map[hostcall.Caller]*Loop),
	}
	h.factories[FetchLibrary] = newFetchLibrary
	h.factories[TimerLibrary] = newTimerLibrary
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = &http.Client{}
	}
	return h
}

// Bind sets the instance that creates worker contexts.
func (h *Host) Bind(inst hostcall.Instance) {
	h.mu.Lock()
	h.inst = inst
	h.mu.Unlock()
}

func (h *Host) instance() hostcall.Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inst
}

// Config returns the effective configuration.
func (h *Host) Config() Config {
	return h.cfg
}

// Message implements hostcall.Host.
func (h *Host) Message(caller hostcall.Caller, library, command, ptr, length uint32) uint32 {
	if h.closed.Load() {
		return 0
	}
	h.open(caller)

	payload, err := hostcall.ReadPayload(caller, ptr, length)
	if err != nil {
		h.log.Warn("unreadable payload",
			zap.String("context", caller.Name()),
			zap.Uint32("library", library),
			zap.Uint32("command", command),
			zap.Error(err))
		return 0
	}

	switch library {
	case hostcall.LibraryNull:
		return 0
	case hostcall.LibraryBuiltin:
		return h.builtin(caller, command, payload)
	}

	lib, ok := h.library(library)
	if !ok {
		h.log.Warn("message for unknown library",
			zap.String("context", caller.Name()),
			zap.Uint32("library", library))
		return 0
	}
	return lib.Handle(Call{Caller: caller, Command: command, Payload: payload})
}

func (h *Host) library(id uint32) (Library, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lib, ok := h.libs[id]
	return lib, ok
}

func (h *Host) register(name string) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id, ok := h.ids[name]; ok {
		return id
	}
	f, ok := h.factories[name]
	if !ok {
		h.log.Warn("unknown library", zap.String("library", name))
		return 0
	}
	id := h.next
	h.next++
	h.ids[name] = id
	h.libs[id] = f(h)
	h.log.Debug("library registered", zap.String("library", name), zap.Uint32("id", id))
	return id
}

// open gives c its delivery loop. Only a live context sends messages, so a
// context that has exited never gets a new loop.
func (h *Host) open(c hostcall.Caller) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return
	}
	if _, ok := h.loops[c]; ok {
		return
	}
	l, err := NewLoop(c.Name(), h.log)
	if err != nil {
		h.log.Warn("no delivery loop", zap.String("context", c.Name()), zap.Error(err))
		return
	}
	h.loops[c] = l
}

func (h *Host) retire(c hostcall.Caller) {
	h.mu.Lock()
	l, ok := h.loops[c]
	delete(h.loops, c)
	h.mu.Unlock()
	if ok {
		l.Close()
	}
}

// Deliver completes token on c with data. Delivery happens on c's loop,
// after earlier deliveries to the same context. A completion for a context
// that has already exited is delivered once on the calling goroutine, so
// the module can reclaim the operation's record. It reports false when the
// host is closed or the module rejected the completion.
func (h *Host) Deliver(c hostcall.Caller, token uint32, data []byte) bool {
	if h.closed.Load() {
		h.dropped.Add(1)
		h.log.Debug("completion dropped", zap.String("context", c.Name()), zap.Uint32("token", token))
		return false
	}

	h.mu.Lock()
	l := h.loops[c]
	h.mu.Unlock()
	if l != nil && l.Post(func() { h.deliver(c, token, data) }) {
		return true
	}

	h.late.Add(1)
	h.log.Debug("late completion", zap.String("context", c.Name()), zap.Uint32("token", token))
	return h.deliver(c, token, data)
}

func (h *Host) deliver(c hostcall.Caller, token uint32, data []byte) bool {
	if err := hostcall.Deliver(c, token, data); err != nil {
		h.dropped.Add(1)
		h.log.Warn("completion rejected",
			zap.String("context", c.Name()),
			zap.Uint32("token", token),
			zap.Error(err))
		return false
	}
	h.delivered.Add(1)
	return true
}

// Wait blocks until every worker has returned.
func (h *Host) Wait() {
	h.workers.Wait()
}

// Stats is a snapshot of host counters.
type Stats struct {
	ActiveWorkers int
	Spawned       uint64
	Refused       uint64
	Panicked      uint64
	Delivered     uint64
	Dropped       uint64
	Late          uint64
	Loops         int
	Libraries     int
}

// Stats returns the host's counters.
func (h *Host) Stats() Stats {
	h.mu.Lock()
	libs := len(h.libs)
	loops := len(h.loops)
	h.mu.Unlock()
	return Stats{
		ActiveWorkers: int(h.active.Load()),
		Spawned:       h.spawned.Load(),
		Refused:       h.refused.Load(),
		Panicked:      h.panicked.Load(),
		Delivered:     h.delivered.Load(),
		Dropped:       h.dropped.Load(),
		Late:          h.late.Load(),
		Loops:         loops,
		Libraries:     libs,
	}
}

// Close refuses further messages, stops every library and drains the
// delivery loops. Running workers are not interrupted; use Wait.
func (h *Host) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.mu.Lock()
	libs := make([]Library, 0, len(h.libs))
	for _, l := range h.libs {
		libs = append(libs, l)
	}
	loops := h.loops
	h.loops = make(map[hostcall.Caller]*Loop)
	h.mu.Unlock()

	var first error
	for _, l := range libs {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, l := range loops {
		l.Close()
	}
	if first != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindClosed, first, "close libraries")
	}
	return nil
}
