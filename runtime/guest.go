package runtime

import (
	"context"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/host"
)

// Guest runs a compiled wasm module that speaks the bridge protocol,
// served by the reference host.
type Guest struct {
	host   *host.Host
	engine *engine.WazeroEngine
	main   *engine.WazeroInstance
}

// LoadGuest compiles wasm and instantiates its main instance.
func LoadGuest(ctx context.Context, wasm []byte, opts Options) (*Guest, error) {
	h := host.New(opts.Config, opts.hostOptions()...)
	cfg := h.Config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng, err := engine.NewWazeroEngine(ctx, h, &engine.Config{
		MemoryPages:    cfg.MemoryPages,
		MaxMemoryPages: cfg.MaxMemoryPages,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	h.Bind(eng)

	if err := eng.LoadModule(ctx, wasm); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	main, err := eng.Main(ctx)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	return &Guest{host: h, engine: eng, main: main}, nil
}

// Run calls export on the main instance.
func (g *Guest) Run(ctx context.Context, export string, args ...uint64) ([]uint64, error) {
	return g.main.Call(ctx, export, args...)
}

// Host returns the host serving the guest.
func (g *Guest) Host() *host.Host {
	return g.host
}

// Engine returns the engine running the guest.
func (g *Guest) Engine() *engine.WazeroEngine {
	return g.engine
}

// Main returns the main instance.
func (g *Guest) Main() *engine.WazeroInstance {
	return g.main
}

// Wait blocks until every worker instance has returned.
func (g *Guest) Wait() {
	g.host.Wait()
}

// Close stops the host and the engine.
func (g *Guest) Close(ctx context.Context) error {
	herr := g.host.Close()
	if err := g.engine.Close(ctx); err != nil {
		return err
	}
	return herr
}
