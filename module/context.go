package module

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/completion"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostcall"
	"github.com/wippyai/wasm-bridge/scratch"
	"github.com/wippyai/wasm-bridge/task"
)

// Context is one execution context of the module: the main context or a
// worker. It owns a scratch buffer, a channel to the host and an executor
// for the tasks it runs. A Context is used from the goroutine it belongs
// to; the host reaches it only through the hostcall.Caller methods.
type Context struct {
	module   *Module
	name     string
	channel  *hostcall.Channel
	scratch  *scratch.Buffer
	exec     *task.Executor
	stackTop uint32
	tlsBase  uint32
	mu       sync.Mutex
}

var _ hostcall.Caller = (*Context)(nil)

func newContext(m *Module, name string, stackTop, tlsBase uint32) *Context {
	c := &Context{
		module:   m,
		name:     name,
		scratch:  scratch.New(m.mem, m.heap),
		exec:     task.NewExecutor(),
		stackTop: stackTop,
		tlsBase:  tlsBase,
	}
	c.channel = hostcall.NewChannel(m.host, c, m.heap, c.scratch)
	return c
}

func (c *Context) Lock()   { c.mu.Lock() }
func (c *Context) Unlock() { c.mu.Unlock() }

// Name returns "main" or "worker-N".
func (c *Context) Name() string { return c.name }

// Memory returns the module's linear memory.
func (c *Context) Memory() wasmbridge.Memory { return c.module.mem }

// ReserveScratch implements hostcall.Caller.
func (c *Context) ReserveScratch(n uint32) (uint32, error) {
	return c.scratch.Reserve(n)
}

// Complete implements hostcall.Caller.
func (c *Context) Complete(token uint32) error {
	return c.module.bridge.Complete(token, c.scratch.Take)
}

// EnterWorker implements hostcall.Caller. It runs the spawned closure on the
// calling goroutine and retires the context afterwards.
func (c *Context) EnterWorker(bundle uint32) error {
	defer func() {
		c.scratch.Release()
		c.module.removeContext(c.name)
	}()
	return c.module.workers.Enter(bundle, c)
}

// Module returns the module c belongs to.
func (c *Context) Module() *Module { return c.module }

// Channel returns c's host call channel.
func (c *Context) Channel() *hostcall.Channel { return c.channel }

// Executor returns c's task executor.
func (c *Context) Executor() *task.Executor { return c.exec }

// StackTop returns the initial stack pointer of a worker context, 0 for main.
func (c *Context) StackTop() uint32 { return c.stackTop }

// TLSBase returns the base of a worker's TLS region, 0 for main.
func (c *Context) TLSBase() uint32 { return c.tlsBase }

// Log writes msg to the host log.
func (c *Context) Log(msg string) {
	c.channel.Call(hostcall.LibraryBuiltin, hostcall.CmdLog, []byte(msg))
}

// LogError writes msg to the host error log.
func (c *Context) LogError(msg string) {
	c.channel.Call(hostcall.LibraryBuiltin, hostcall.CmdLogError, []byte(msg))
}

// AvailableParallelism returns how many workers the host suggests running.
// A host that does not answer yields 1.
func (c *Context) AvailableParallelism() int {
	n, ok := c.channel.Lookup(hostcall.LibraryBuiltin, hostcall.CmdParallelism, nil)
	if !ok {
		return 1
	}
	return int(n)
}

// Spawn starts fn on a new worker context and returns the bundle handle.
// If the host refuses the worker, fn never runs and its regions are
// released. Running out of memory for the stack or TLS panics.
func (c *Context) Spawn(fn func(w *Context)) (uint32, error) {
	handle, err := c.module.workers.SpawnFrom(c.queryTLS, fn, func(bundle, stackTop, tlsBase uint32) uint32 {
		return c.channel.Call(hostcall.LibraryBuiltin, hostcall.CmdSpawnWorker,
			hostcall.PutU32s(bundle, stackTop, tlsBase))
	})
	if err != nil {
		c.module.log.Warn("worker refused", zap.String("context", c.name), zap.Error(err))
	}
	return handle, err
}

// queryTLS asks the host for the TLS layout over c's own channel.
func (c *Context) queryTLS() (size, align uint32) {
	size, _ = c.channel.Lookup(hostcall.LibraryBuiltin, hostcall.CmdTLSSize, nil)
	align, _ = c.channel.Lookup(hostcall.LibraryBuiltin, hostcall.CmdTLSAlign, nil)
	return size, align
}

// Library returns the id of the host library registered under source.
func (c *Context) Library(source string) (uint32, error) {
	return c.module.libs.Get(c.channel, source)
}

// Call sends a raw command to a library.
func (c *Context) Call(library, command uint32, payload []byte) uint32 {
	return c.channel.Call(library, command, payload)
}

// FetchOp returns an operation that fetches url through the host's fetch
// library. Its result is the encoded status and body.
func (c *Context) FetchOp(url string) (*completion.Operation, error) {
	lib, err := c.Library(completion.FetchLibrary)
	if err != nil {
		return nil, err
	}
	return c.module.bridge.Start("fetch", func(token uint32) uint32 {
		return c.channel.Call(lib, completion.CmdFetch, completion.FetchRequest(token, url))
	}), nil
}

// Fetch retrieves url and waits for the host to deliver it. A status of 0
// means the host could not perform the request.
func (c *Context) Fetch(ctx context.Context, url string) ([]byte, uint32, error) {
	op, err := c.FetchOp(url)
	if err != nil {
		return nil, 0, err
	}
	data, err := task.BlockOn[[]byte](ctx, op)
	if err != nil {
		return nil, 0, err
	}
	status, body, err := completion.ParseFetchResult(data)
	if err != nil {
		return nil, 0, err
	}
	return body, status, nil
}

// SleepOp returns an operation that completes after d.
func (c *Context) SleepOp(d time.Duration) (*completion.Operation, error) {
	lib, err := c.Library(completion.TimerLibrary)
	if err != nil {
		return nil, err
	}
	return c.module.bridge.Start("sleep", func(token uint32) uint32 {
		return c.channel.Call(lib, completion.CmdSleep, completion.SleepRequest(token, d))
	}), nil
}

// Sleep waits for d using the host's timer library.
func (c *Context) Sleep(ctx context.Context, d time.Duration) error {
	op, err := c.SleepOp(d)
	if err != nil {
		return err
	}
	_, err = task.BlockOn[[]byte](ctx, op)
	return err
}

// Block runs fut to completion on the calling goroutine.
func Block[T any](ctx context.Context, fut task.Future[T]) (T, error) {
	return task.BlockOn(ctx, fut)
}

// Go spawns fut on c's executor.
func Go[T any](c *Context, fut task.Future[T]) *task.Handle[T] {
	return task.Spawn(c.exec, fut)
}

// Run drives c's executor until every spawned task has finished.
func (c *Context) Run(ctx context.Context) error {
	if c.module.closed.Load() {
		return errors.Closed(errors.PhaseRuntime, "module")
	}
	return c.exec.Run(ctx)
}
