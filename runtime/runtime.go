package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/host"
	"github.com/wippyai/wasm-bridge/module"
)

// Options configures a Runtime or a Guest.
type Options struct {
	// Config is the host configuration. Zero fields take defaults.
	Config host.Config

	// Logger receives host and module logs. Defaults to the host
	// package logger.
	Logger *zap.Logger

	// HostOptions are appended after the logger option.
	HostOptions []host.Option
}

func (o Options) hostOptions() []host.Option {
	var opts []host.Option
	if o.Logger != nil {
		opts = append(opts, host.WithLogger(o.Logger))
	}
	return append(opts, o.HostOptions...)
}

// Runtime pairs the reference host with an in-process module.
type Runtime struct {
	host   *host.Host
	module *module.Module
}

// New validates the configuration and creates the host and module.
func New(opts Options) (*Runtime, error) {
	h := host.New(opts.Config, opts.hostOptions()...)
	cfg := h.Config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := module.New(h, module.Config{
		Logger:    opts.Logger,
		Pages:     cfg.MemoryPages,
		MaxPages:  cfg.MaxMemoryPages,
		StackSize: cfg.StackSize,
	})
	h.Bind(m)
	return &Runtime{host: h, module: m}, nil
}

// Main returns the module's main context.
func (r *Runtime) Main() *module.Context {
	return r.module.Main()
}

// Host returns the host.
func (r *Runtime) Host() *host.Host {
	return r.host
}

// Module returns the module.
func (r *Runtime) Module() *module.Module {
	return r.module
}

// Wait blocks until every spawned worker has returned.
func (r *Runtime) Wait() {
	r.host.Wait()
}

// Close stops the host and releases the module. Workers still running are
// not interrupted.
func (r *Runtime) Close() error {
	herr := r.host.Close()
	merr := r.module.Close()
	if herr != nil {
		return herr
	}
	if merr != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindClosed, merr, "close module")
	}
	return nil
}
