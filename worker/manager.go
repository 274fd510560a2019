package worker

import (
	"sync/atomic"

	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/resource"
)

// Default stack geometry for a new execution context.
const (
	DefaultStackSize  = 1 << 20
	DefaultStackAlign = wasmbridge.PageSize
)

// Config configures a Manager.
type Config struct {
	StackSize  uint32
	StackAlign uint32
}

// Request asks the host to create an execution context that will call the
// entry trampoline with bundle. It returns the host's answer; 0 is a refusal.
type Request func(bundle, stackTop, tlsBase uint32) uint32

// Manager allocates worker resources and runs the entry trampoline.
//
// Worker stacks have no guard page. A worker that overflows its stack
// writes into whatever lies below the stack region.
type Manager[T any] struct {
	alloc    wasmbridge.Allocator
	tls      *TLSLayout
	table    *resource.UnifiedTable
	bundles  *resource.Owned[*Bundle[T]]
	counter  *resource.Counter
	log      *zap.Logger
	cfg      Config
	finished atomic.Uint64
	refused  atomic.Uint64
}

// NewManager creates a manager whose bundles are handles in table.
func NewManager[T any](alloc wasmbridge.Allocator, table *resource.UnifiedTable, tls *TLSLayout, cfg Config) *Manager[T] {
	if cfg.StackSize == 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.StackAlign == 0 {
		cfg.StackAlign = DefaultStackAlign
	}
	m := &Manager[T]{
		alloc:   alloc,
		tls:     tls,
		table:   table,
		bundles: resource.NewOwned[*Bundle[T]](table, resource.TypeWorkerBundle),
		counter: resource.NewCounter(resource.TypeWorkerBundle),
		log:     Logger(),
		cfg:     cfg,
	}
	table.Subscribe(m.counter)
	return m
}

// Close stops counting bundle events.
func (m *Manager[T]) Close() {
	m.table.Unsubscribe(m.counter)
}

// TLS returns the layout used for TLS regions.
func (m *Manager[T]) TLS() *TLSLayout {
	return m.tls
}

// mustAlloc allocates or panics: a worker without its stack or TLS cannot run.
func (m *Manager[T]) mustAlloc(what string, size, align uint32) wasmbridge.Region {
	ptr, err := m.alloc.Alloc(size, align)
	if err != nil {
		e := errors.AllocationFailed(errors.PhaseSpawn, size, align, err)
		e.Path = []string{what}
		panic(e)
	}
	return wasmbridge.Region{Base: ptr, Size: size, Align: align}
}

// Spawn packages entry with a fresh stack and TLS region and asks the host,
// through request, to start a worker on them. It returns the bundle handle.
// Allocation failure panics. If the host refuses, the bundle is reclaimed,
// its regions released, and a KindNoResult error returned.
func (m *Manager[T]) Spawn(entry func(T), request Request) (uint32, error) {
	return m.SpawnFrom(nil, entry, request)
}

// SpawnFrom is Spawn for a context that answers the first TLS layout query
// itself, so the host sees the query come from the context that spawns.
func (m *Manager[T]) SpawnFrom(query TLSQuery, entry func(T), request Request) (uint32, error) {
	tlsSize, tlsAlign := m.tls.Load(query)

	b := &Bundle[T]{entry: entry, alloc: m.alloc}
	b.Stack = m.mustAlloc("stack", m.cfg.StackSize, m.cfg.StackAlign)
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.Stack.Release(m.alloc)
				panic(r)
			}
		}()
		b.TLS = m.mustAlloc("tls", tlsSize, tlsAlign)
	}()

	h, err := m.bundles.Leak(b)
	if err != nil {
		b.Drop()
		return 0, err
	}
	handle := uint32(h)

	m.log.Debug("spawning worker",
		zap.Uint32("bundle", handle),
		zap.Uint32("stack_top", b.StackTop()),
		zap.Uint32("tls_base", b.TLS.Base))

	if request(handle, b.StackTop(), b.TLS.Base) == 0 {
		if mine, ok := m.bundles.Reclaim(h); ok {
			mine.Drop()
		}
		m.refused.Add(1)
		return 0, errors.New(errors.PhaseSpawn, errors.KindNoResult).
			Detail("host refused to start worker").
			Build()
	}
	return handle, nil
}

// Enter is the worker trampoline. It takes ownership of the bundle behind
// handle, runs its closure with arg, and releases the bundle's regions once
// the closure has returned. A handle can be entered once.
func (m *Manager[T]) Enter(handle uint32, arg T) error {
	b, ok := m.bundles.Reclaim(resource.Handle(handle))
	if !ok {
		return errors.InvalidToken(errors.PhaseSpawn, handle)
	}
	defer func() {
		b.Drop()
		m.finished.Add(1)
	}()

	entry := b.take()
	if entry == nil {
		return errors.InvalidToken(errors.PhaseSpawn, handle)
	}
	entry(arg)
	return nil
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Spawned   uint64
	Finished  uint64
	Refused   uint64
	Discarded uint64
	Pending   int
}

// Stats returns the manager's counters. Pending counts bundles handed to the
// host whose trampoline has not run yet; Discarded counts bundles the
// table dropped before they were entered.
func (m *Manager[T]) Stats() Stats {
	refused := m.refused.Load()
	return Stats{
		Spawned:   m.counter.Created() - refused,
		Finished:  m.finished.Load(),
		Refused:   refused,
		Discarded: m.counter.Dropped(),
		Pending:   m.bundles.Len(),
	}
}
