package module

import (
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/completion"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostcall"
	"github.com/wippyai/wasm-bridge/linear"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/worker"
)

// Config configures a Module.
type Config struct {
	// Logger overrides the package logger.
	Logger *zap.Logger

	// Pages is the initial linear memory size. Default 17 (just over 1 MiB).
	Pages uint32

	// MaxPages bounds memory growth. 0 means linear.MaxPages (65535 pages).
	MaxPages uint32

	// HeapBase is the lowest address the heap hands out. Default 1024.
	HeapBase uint32

	// StackSize and StackAlign override worker stack geometry.
	StackSize  uint32
	StackAlign uint32
}

// Module is the module side of the bridge running in-process: one linear
// memory and heap shared by a main context and any number of workers.
type Module struct {
	host    hostcall.Host
	mem     *linear.Memory
	heap    *linear.Heap
	table   *resource.UnifiedTable
	libs    *hostcall.Libraries
	bridge  *completion.Bridge
	workers *worker.Manager[*Context]
	main    *Context
	log     *zap.Logger

	contexts map[string]*Context
	mu       sync.Mutex
	nextID   atomic.Uint32
	closed   atomic.Bool
}

var _ hostcall.Instance = (*Module)(nil)

// New creates a module talking to host and its main context.
func New(host hostcall.Host, cfg Config) *Module {
	if cfg.Pages == 0 {
		cfg.Pages = 17
	}
	if cfg.HeapBase == 0 {
		cfg.HeapBase = 1024
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	mem := linear.NewMemory(cfg.Pages, cfg.MaxPages)
	m := &Module{
		host:     host,
		mem:      mem,
		heap:     linear.NewHeap(mem, cfg.HeapBase),
		table:    resource.NewTable(),
		libs:     hostcall.NewLibraries(),
		log:      log,
		contexts: make(map[string]*Context),
	}
	m.bridge = completion.NewBridge(m.table)

	m.main = m.newContext("main", 0, 0)
	tls := worker.NewTLSLayout(m.main.queryTLS)
	m.workers = worker.NewManager[*Context](m.heap, m.table, tls, worker.Config{
		StackSize:  cfg.StackSize,
		StackAlign: cfg.StackAlign,
	})
	return m
}

func (m *Module) newContext(name string, stackTop, tlsBase uint32) *Context {
	c := newContext(m, name, stackTop, tlsBase)
	m.mu.Lock()
	m.contexts[name] = c
	m.mu.Unlock()
	return c
}

// Main returns the main execution context.
func (m *Module) Main() *Context {
	return m.main
}

// NewContext creates the execution context for a worker the host is
// starting. Its TLS region is cleared before first use.
func (m *Module) NewContext(stackTop, tlsBase uint32) (hostcall.Caller, error) {
	if m.closed.Load() {
		return nil, errors.Closed(errors.PhaseSpawn, "module")
	}
	if tlsBase != 0 {
		size, _ := m.workers.TLS().Get()
		if err := m.mem.Zero(tlsBase, size); err != nil {
			return nil, errors.Wrap(errors.PhaseSpawn, errors.KindOutOfBounds, err, "initialize TLS")
		}
	}
	name := "worker-" + strconv.FormatUint(uint64(m.nextID.Add(1)), 10)
	return m.newContext(name, stackTop, tlsBase), nil
}

func (m *Module) removeContext(name string) {
	m.mu.Lock()
	delete(m.contexts, name)
	m.mu.Unlock()
}

// Context returns a live context by name.
func (m *Module) Context(name string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[name]
	return c, ok
}

// Memory returns the module's linear memory.
func (m *Module) Memory() *linear.Memory {
	return m.mem
}

// Heap returns the module's allocator.
func (m *Module) Heap() *linear.Heap {
	return m.heap
}

// Bridge returns the completion bridge.
func (m *Module) Bridge() *completion.Bridge {
	return m.bridge
}

// TLS returns the cached thread-local storage layout.
func (m *Module) TLS() *worker.TLSLayout {
	return m.workers.TLS()
}

// Stats is a snapshot of module counters.
type Stats struct {
	Completion  completion.Stats
	Workers     worker.Stats
	Contexts    int
	Libraries   int
	HeapInUse   uint64
	MemoryPages uint32
}

// Stats returns the module's counters.
func (m *Module) Stats() Stats {
	m.mu.Lock()
	n := len(m.contexts)
	m.mu.Unlock()
	return Stats{
		Completion:  m.bridge.Stats(),
		Workers:     m.workers.Stats(),
		Contexts:    n,
		Libraries:   m.libs.Len(),
		HeapInUse:   m.heap.InUse(),
		MemoryPages: m.mem.Pages(),
	}
}

// Close drops bundles that were never entered and fails operations the
// host has not completed; their late completions are rejected as unknown
// tokens. It also releases the main context's scratch.
func (m *Module) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.table.Clear()
	m.bridge.Close()
	m.workers.Close()
	m.main.scratch.Release()
	return m.table.Close()
}
