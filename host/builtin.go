package host

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/hostcall"
)

func (h *Host) builtin(caller hostcall.Caller, command uint32, payload []byte) uint32 {
	switch command {
	case hostcall.CmdRegisterLibrary:
		return h.register(string(payload))

	case hostcall.CmdLog:
		h.log.Info(string(payload), zap.String("context", caller.Name()))
		return 0

	case hostcall.CmdLogError:
		h.log.Error(string(payload), zap.String("context", caller.Name()))
		return 0

	case hostcall.CmdTLSSize:
		size, _ := h.tlsLayout()
		return size

	case hostcall.CmdTLSAlign:
		_, align := h.tlsLayout()
		return align

	case hostcall.CmdParallelism:
		if h.cfg.Parallelism != 0 {
			return h.cfg.Parallelism
		}
		return uint32(runtime.NumCPU())

	case hostcall.CmdSpawnWorker:
		return h.spawn(caller, payload)
	}

	h.log.Warn("unknown builtin command",
		zap.String("context", caller.Name()),
		zap.Uint32("command", command))
	return 0
}

func (h *Host) tlsLayout() (size, align uint32) {
	if r, ok := h.instance().(hostcall.TLSReporter); ok {
		return r.TLSLayout()
	}
	return h.cfg.TLSSize, h.cfg.TLSAlign
}

// acquire reserves a worker slot under MaxWorkers.
func (h *Host) acquire() bool {
	limit := int32(h.cfg.MaxWorkers)
	for {
		n := h.active.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if h.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// spawn creates the worker context synchronously, so the bundle is never
// handed to a context that failed to start, and enters it on a new goroutine.
func (h *Host) spawn(caller hostcall.Caller, payload []byte) uint32 {
	args, err := hostcall.U32s(payload, 3)
	if err != nil {
		h.log.Warn("malformed spawn request", zap.String("context", caller.Name()), zap.Error(err))
		return 0
	}
	bundle, stackTop, tlsBase := args[0], args[1], args[2]

	inst := h.instance()
	if inst == nil {
		h.refused.Add(1)
		h.log.Warn("spawn without instance", zap.String("context", caller.Name()))
		return 0
	}
	if !h.acquire() {
		h.refused.Add(1)
		h.log.Warn("worker limit reached",
			zap.String("context", caller.Name()),
			zap.Int("max_workers", h.cfg.MaxWorkers))
		return 0
	}

	w, err := inst.NewContext(stackTop, tlsBase)
	if err != nil {
		h.active.Add(-1)
		h.refused.Add(1)
		h.log.Warn("worker context failed", zap.String("context", caller.Name()), zap.Error(err))
		return 0
	}

	h.spawned.Add(1)
	h.workers.Add(1)
	go h.runWorker(w, bundle)
	return 1
}

func (h *Host) runWorker(w hostcall.Caller, bundle uint32) {
	defer h.workers.Done()
	defer h.active.Add(-1)
	defer h.retire(w)
	defer func() {
		if r := recover(); r != nil {
			h.panicked.Add(1)
			h.log.Error("worker panicked", zap.String("context", w.Name()), zap.Any("panic", r))
		}
	}()

	h.log.Debug("worker started", zap.String("context", w.Name()), zap.Uint32("bundle", bundle))
	if err := w.EnterWorker(bundle); err != nil {
		h.log.Warn("worker entry failed", zap.String("context", w.Name()), zap.Error(err))
		return
	}
	h.log.Debug("worker finished", zap.String("context", w.Name()))
}
