package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostcall"
)

// WazeroInstance is one guest instance: the main instance or a worker. It
// is the hostcall.Caller for messages the instance sends.
//
// The lock is held while the instance executes an export, so a delivery
// waits until the guest returns to the host, like an event loop turn.
type WazeroInstance struct {
	engine   *WazeroEngine
	name     string
	mod      api.Module
	mem      *WazeroMemory
	funcs    map[string]api.Function
	stackTop uint32
	tlsBase  uint32
	mu       sync.Mutex
}

var (
	_ hostcall.Caller    = (*WazeroInstance)(nil)
	_ hostcall.Forwarder = (*WazeroInstance)(nil)
)

func (i *WazeroInstance) Lock()   { i.mu.Lock() }
func (i *WazeroInstance) Unlock() { i.mu.Unlock() }

// Name returns the instance's module name.
func (i *WazeroInstance) Name() string { return i.name }

// Memory returns the shared memory.
func (i *WazeroInstance) Memory() wasmbridge.Memory { return i.mem }

// Module returns the underlying wazero module.
func (i *WazeroInstance) Module() api.Module { return i.mod }

// StackTop returns the stack pointer a worker was started with.
func (i *WazeroInstance) StackTop() uint32 { return i.stackTop }

// TLSBase returns a worker's TLS block.
func (i *WazeroInstance) TLSBase() uint32 { return i.tlsBase }

// getExportedFunction caches export lookups. Callers hold the lock or are
// still constructing the instance.
func (i *WazeroInstance) getExportedFunction(name string) api.Function {
	if fn, ok := i.funcs[name]; ok {
		return fn
	}
	fn := i.mod.ExportedFunction(name)
	if i.funcs == nil {
		i.funcs = make(map[string]api.Function)
	}
	i.funcs[name] = fn
	return fn
}

func (i *WazeroInstance) call(name string, args ...uint64) ([]uint64, error) {
	if i.mod == nil {
		return nil, errors.Closed(errors.PhaseRuntime, i.name)
	}
	fn := i.getExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	res, err := fn.Call(i.engine.ctx, args...)
	if err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Path(i.name, name).
			Detail("guest call failed").
			Cause(err).
			Build()
	}
	return res, nil
}

// callOptional calls name if the guest exports it.
func (i *WazeroInstance) callOptional(name string, args ...uint64) ([]uint64, error) {
	if i.getExportedFunction(name) == nil {
		return nil, nil
	}
	return i.call(name, args...)
}

// Call runs an export of the instance. No delivery reaches the instance
// until it returns.
func (i *WazeroInstance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return i.call(name, args...)
}

// Forward implements hostcall.Forwarder. A worker instance that has been
// closed hands late completions to the main instance: the records they
// reclaim live in the shared memory, not in the worker. The caller holds
// i's lock.
func (i *WazeroInstance) Forward() hostcall.Caller {
	if i.mod != nil {
		return nil
	}
	main := i.engine.mainInstance()
	if main == nil || main == i {
		return nil
	}
	return main
}

// ReserveScratch implements hostcall.Caller through kwasm_reserve_space.
func (i *WazeroInstance) ReserveScratch(n uint32) (uint32, error) {
	res, err := i.call(exportReserve, uint64(n))
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, errors.InvalidData(errors.PhaseScratch, exportReserve+" returned no pointer")
	}
	return api.DecodeU32(res[0]), nil
}

// Complete implements hostcall.Caller through kwasm_complete. Guests that
// only export the older kwasm_complete_fetch are served by it.
func (i *WazeroInstance) Complete(token uint32) error {
	name := exportComplete
	if i.getExportedFunction(name) == nil {
		name = exportCompleteFetch
	}
	_, err := i.call(name, uint64(token))
	return err
}

// EnterWorker implements hostcall.Caller: it runs the worker entry point
// and closes the instance once the trampoline returns.
func (i *WazeroInstance) EnterWorker(bundle uint32) error {
	i.mu.Lock()
	_, err := i.call(exportWorkerEntry, uint64(bundle))
	i.mu.Unlock()

	if cerr := i.Close(i.engine.ctx); cerr != nil {
		i.engine.log.Warn("close worker instance", zap.String("name", i.name), zap.Error(cerr))
	}
	return err
}

// Close closes the instance. The shared memory stays alive.
func (i *WazeroInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.engine.forget(i.name)
	if i.mod == nil {
		return nil
	}
	err := i.mod.Close(ctx)
	i.mod = nil
	i.funcs = nil
	return err
}
