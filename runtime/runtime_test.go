package runtime

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/host"
	"github.com/wippyai/wasm-bridge/hostcall"
	"github.com/wippyai/wasm-bridge/module"
	"github.com/wippyai/wasm-bridge/wasm"
)

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Options{Config: host.Config{TLSAlign: 3}})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRuntime_SpawnAndWait(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rt, err := New(Options{Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rt.Close()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		if _, err := rt.Main().Spawn(func(w *module.Context) {
			ran.Add(1)
			w.Log("worker says hi")
		}); err != nil {
			t.Fatalf("Spawn failed: %v", err)
		}
	}
	rt.Wait()

	if ran.Load() != 3 {
		t.Errorf("ran %d workers, want 3", ran.Load())
	}
	if n := logs.FilterMessage("worker says hi").Len(); n != 3 {
		t.Errorf("logged %d times, want 3", n)
	}
	if s := rt.Host().Stats(); s.Spawned != 3 || s.ActiveWorkers != 0 {
		t.Errorf("host stats = %+v", s)
	}
	if inUse := rt.Module().Heap().InUse(); inUse != 0 {
		t.Errorf("heap in use after workers = %d", inUse)
	}
}

func TestRuntime_CloseTwice(t *testing.T) {
	rt, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func buildLoggingGuest(t *testing.T, limits wasm.Limits) []byte {
	t.Helper()
	i32 := api.ValueTypeI32

	b := wasm.NewModuleBuilder()
	msg := b.ImportFunc(engine.HostModule, engine.HostMessage, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32})
	b.ImportMemory(engine.MemoryModule, engine.MemoryName, limits)
	b.Export("_start", api.ExternTypeFunc, b.DefineFunc(nil, nil, nil, wasm.NewCode().
		I32Const(int32(hostcall.LibraryBuiltin)).I32Const(int32(hostcall.CmdLog)).
		I32Const(1024).I32Const(2).Call(msg).Drop()))

	bin, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestLoadGuest_Run(t *testing.T) {
	ctx := context.Background()
	cfg := host.Config{MemoryPages: 17, MaxMemoryPages: 64}
	limits := engine.MemoryLimits(&engine.Config{MemoryPages: cfg.MemoryPages, MaxMemoryPages: cfg.MaxMemoryPages})

	core, logs := observer.New(zap.InfoLevel)
	g, err := LoadGuest(ctx, buildLoggingGuest(t, limits), Options{Config: cfg, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("LoadGuest failed: %v", err)
	}
	defer g.Close(ctx)

	if err := g.Engine().Memory().Write(1024, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Run(ctx, "_start"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	g.Wait()

	entries := logs.FilterMessage("hi").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries", len(entries))
	}
	if ctxName := entries[0].ContextMap()["context"]; ctxName != engine.MainName {
		t.Errorf("context = %v, want %s", ctxName, engine.MainName)
	}
}

func TestLoadGuest_InvalidWasm(t *testing.T) {
	ctx := context.Background()
	_, err := LoadGuest(ctx, []byte("not wasm"), Options{Config: host.Config{MaxMemoryPages: 64}})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}) {
		t.Fatalf("expected load error, got %v", err)
	}
}
