package engine

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostcall"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryPages is the initial size of the shared memory. Default 17.
	MemoryPages uint32

	// MaxMemoryPages bounds the shared memory; shared memories must declare
	// a maximum. Default 2048 (128 MiB).
	MaxMemoryPages uint32

	// Logger overrides the package logger.
	Logger *zap.Logger
}

// WazeroEngine runs a guest module under wazero with the threads proposal
// enabled. Every instance it creates imports the same shared memory, so the
// main instance and its workers see one linear memory.
type WazeroEngine struct {
	ctx      context.Context
	runtime  wazero.Runtime
	host     hostcall.Host
	compiled wazero.CompiledModule
	memory   api.Module
	log      *zap.Logger

	main      *WazeroInstance
	instances map[string]*WazeroInstance
	mu        sync.Mutex

	nextWorker atomic.Uint32
	tlsSize    uint32
	tlsAlign   uint32
}

var _ hostcall.Instance = (*WazeroEngine)(nil)
var _ hostcall.TLSReporter = (*WazeroEngine)(nil)

// NewWazeroEngine creates the runtime, the shared memory provider and the
// host module that carries message_to_host to host.
func NewWazeroEngine(ctx context.Context, host hostcall.Host, cfg *Config) (*WazeroEngine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.MemoryPages == 0 {
		c.MemoryPages = 17
	}
	if c.MaxMemoryPages == 0 {
		c.MaxMemoryPages = 2048
	}
	if c.MaxMemoryPages < c.MemoryPages {
		return nil, errors.InvalidInput(errors.PhaseConfig, "max memory pages below initial pages")
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads).
		WithMemoryLimitPages(c.MaxMemoryPages)
	e := &WazeroEngine{
		ctx:       ctx,
		runtime:   wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		host:      host,
		log:       c.Logger,
		instances: make(map[string]*WazeroInstance),
		tlsAlign:  1,
	}

	if err := e.instantiateMemory(ctx, c); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	if err := e.instantiateHostModule(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

// MemoryLimits returns the limits guests must declare on their env.memory
// import.
func MemoryLimits(cfg *Config) wasm.Limits {
	lo, hi := uint32(17), uint32(2048)
	if cfg != nil && cfg.MemoryPages != 0 {
		lo = cfg.MemoryPages
	}
	if cfg != nil && cfg.MaxMemoryPages != 0 {
		hi = cfg.MaxMemoryPages
	}
	return wasm.Limits{Min: lo, Max: hi, HasMax: true, Shared: true}
}

func (e *WazeroEngine) instantiateMemory(ctx context.Context, c Config) error {
	b := wasm.NewModuleBuilder()
	b.DefineMemory(MemoryLimits(&c))
	b.Export(MemoryName, api.ExternTypeMemory, 0)
	bin, err := b.Build()
	if err != nil {
		return errors.Load("build memory provider", err)
	}
	mod, err := e.runtime.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithName(MemoryModule))
	if err != nil {
		return errors.Instantiation(MemoryModule, err)
	}
	e.memory = mod
	return nil
}

func (e *WazeroEngine) instantiateHostModule(ctx context.Context) error {
	i32 := api.ValueTypeI32
	_, err := e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.message), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		WithParameterNames("library", "command", "ptr", "len").
		Export(HostMessage).
		Instantiate(ctx)
	if err != nil {
		return errors.Instantiation(HostModule, err)
	}
	return nil
}

// message is the body of kwasm.message_to_host.
func (e *WazeroEngine) message(_ context.Context, mod api.Module, stack []uint64) {
	inst, ok := e.instance(mod.Name())
	if !ok {
		e.log.Warn("message from unknown instance", zap.String("module", mod.Name()))
		stack[0] = 0
		return
	}
	library := api.DecodeU32(stack[0])
	command := api.DecodeU32(stack[1])
	ptr := api.DecodeU32(stack[2])
	length := api.DecodeU32(stack[3])
	stack[0] = api.EncodeU32(e.host.Message(inst, library, command, ptr, length))
}

func (e *WazeroEngine) instance(name string) (*WazeroInstance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[name]
	return inst, ok
}

// LoadModule compiles the guest. It must import env.memory as shared
// memory and may import kwasm.message_to_host.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) error {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return errors.Load("compile guest", err)
	}
	e.compiled = compiled
	return nil
}

func (e *WazeroEngine) instantiate(ctx context.Context, name string) (*WazeroInstance, error) {
	if e.compiled == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "guest module")
	}
	inst := &WazeroInstance{engine: e, name: name}

	// Register before instantiating so a start function that calls the
	// host can be attributed.
	e.mu.Lock()
	e.instances[name] = inst
	e.mu.Unlock()

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions())
	if err != nil {
		e.forget(name)
		return nil, errors.Instantiation(name, err)
	}
	inst.mod = mod
	inst.mem = e.Memory()
	return inst, nil
}

func (e *WazeroEngine) forget(name string) {
	e.mu.Lock()
	delete(e.instances, name)
	e.mu.Unlock()
}

// Main instantiates the main instance and reads its TLS layout. Calling
// Main again returns the same instance.
func (e *WazeroEngine) Main(ctx context.Context) (*WazeroInstance, error) {
	e.mu.Lock()
	main := e.main
	e.mu.Unlock()
	if main != nil {
		return main, nil
	}

	inst, err := e.instantiate(ctx, MainName)
	if err != nil {
		return nil, err
	}
	size, align := readTLSLayout(inst.mod)

	e.mu.Lock()
	e.main = inst
	e.tlsSize, e.tlsAlign = size, align
	e.mu.Unlock()
	e.log.Debug("main instance ready", zap.Uint32("tls_size", size), zap.Uint32("tls_align", align))
	return inst, nil
}

func (e *WazeroEngine) mainInstance() *WazeroInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.main
}

func readTLSLayout(mod api.Module) (size, align uint32) {
	align = 1
	if g := mod.ExportedGlobal(globalTLSSize); g != nil {
		size = api.DecodeU32(g.Get())
	}
	if g := mod.ExportedGlobal(globalTLSAlign); g != nil {
		if a := api.DecodeU32(g.Get()); a != 0 {
			align = a
		}
	}
	return size, align
}

// TLSLayout implements hostcall.TLSReporter.
func (e *WazeroEngine) TLSLayout() (size, align uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tlsSize, e.tlsAlign
}

// NewContext implements hostcall.Instance: it instantiates a worker,
// points its stack pointer at stackTop and initializes its TLS block.
// When the module did not allocate TLS itself (tlsBase 0) the worker's
// kwasm_alloc_thread_local_storage export is asked for one.
func (e *WazeroEngine) NewContext(stackTop, tlsBase uint32) (hostcall.Caller, error) {
	name := "worker-" + strconv.FormatUint(uint64(e.nextWorker.Add(1)), 10)
	inst, err := e.instantiate(e.ctx, name)
	if err != nil {
		return nil, err
	}
	inst.stackTop = stackTop

	if _, err := inst.callOptional(exportSetStack, uint64(stackTop)); err != nil {
		_ = inst.Close(e.ctx)
		return nil, err
	}
	if tlsBase == 0 {
		res, err := inst.callOptional(exportAllocTLS)
		if err != nil {
			_ = inst.Close(e.ctx)
			return nil, err
		}
		if len(res) > 0 {
			tlsBase = api.DecodeU32(res[0])
		}
	}
	inst.tlsBase = tlsBase
	if tlsBase != 0 {
		if _, err := inst.callOptional(exportInitTLS, uint64(tlsBase)); err != nil {
			_ = inst.Close(e.ctx)
			return nil, err
		}
	}

	e.log.Debug("worker instance ready",
		zap.String("name", name),
		zap.Uint32("stack_top", stackTop),
		zap.Uint32("tls_base", tlsBase))
	return inst, nil
}

// Memory returns the shared memory.
func (e *WazeroEngine) Memory() *WazeroMemory {
	return &WazeroMemory{mem: e.memory.ExportedMemory(MemoryName)}
}

// Instances returns the number of live guest instances.
func (e *WazeroEngine) Instances() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

// Close closes every instance and the runtime.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
