package host

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostcall"
	"github.com/wippyai/wasm-bridge/module"
)

func newTestHost(t *testing.T, cfg Config) (*Host, *module.Module, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	h := New(cfg, WithLogger(zap.New(core)))
	m := module.New(h, module.Config{})
	h.Bind(m)
	t.Cleanup(func() {
		h.Wait()
		_ = h.Close()
		_ = m.Close()
	})
	return h, m, logs
}

func TestHost_Log(t *testing.T) {
	_, m, logs := newTestHost(t, Config{})

	m.Main().Log("hello")
	m.Main().LogError("broken")

	entries := logs.FilterMessage("hello").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "main", entries[0].ContextMap()["context"])

	entries = logs.FilterMessage("broken").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
}

func TestHost_Parallelism(t *testing.T) {
	_, m, _ := newTestHost(t, Config{Parallelism: 3})
	assert.Equal(t, 3, m.Main().AvailableParallelism())
}

func TestHost_TLSLayoutFromConfig(t *testing.T) {
	_, m, _ := newTestHost(t, Config{TLSSize: 128, TLSAlign: 64})

	done := make(chan uint32, 1)
	_, err := m.Main().Spawn(func(w *module.Context) { done <- w.TLSBase() })
	require.NoError(t, err)

	base := <-done
	assert.Zero(t, base%64)
	size, align := m.TLS().Get()
	assert.Equal(t, uint32(128), size)
	assert.Equal(t, uint32(64), align)
}

func TestHost_SpawnWorkers(t *testing.T) {
	h, m, logs := newTestHost(t, Config{})

	const n = 5
	for i := 0; i < n; i++ {
		i := i
		_, err := m.Main().Spawn(func(w *module.Context) {
			w.Log(fmt.Sprintf("worker %d", i))
		})
		require.NoError(t, err)
	}
	h.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, 1, logs.FilterMessage(fmt.Sprintf("worker %d", i)).Len())
	}
	stats := h.Stats()
	assert.Equal(t, uint64(n), stats.Spawned)
	assert.Zero(t, stats.ActiveWorkers)
	assert.Zero(t, m.Heap().InUse())
}

func TestHost_MaxWorkers(t *testing.T) {
	h, m, _ := newTestHost(t, Config{MaxWorkers: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := m.Main().Spawn(func(*module.Context) {
		close(started)
		<-release
	})
	require.NoError(t, err)
	<-started

	_, err = m.Main().Spawn(func(*module.Context) { t.Error("refused worker ran") })
	assert.ErrorIs(t, err, errors.ErrNoResult)

	close(release)
	h.Wait()

	stats := h.Stats()
	assert.Equal(t, uint64(1), stats.Spawned)
	assert.Equal(t, uint64(1), stats.Refused)
	assert.Zero(t, m.Heap().InUse())
}

func TestHost_WorkerPanicIsContained(t *testing.T) {
	h, m, logs := newTestHost(t, Config{})

	_, err := m.Main().Spawn(func(*module.Context) { panic("worker failure") })
	require.NoError(t, err)
	h.Wait()

	assert.Equal(t, uint64(1), h.Stats().Panicked)
	assert.Equal(t, 1, logs.FilterMessage("worker panicked").Len())
	assert.Zero(t, m.Heap().InUse())
}

func TestHost_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("path " + r.URL.Path))
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	h, m, _ := newTestHost(t, Config{AllowedHosts: []string{u.Hostname()}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, status, err := m.Main().Fetch(ctx, srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, uint32(http.StatusTeapot), status)
	assert.Equal(t, "path /a", string(body))

	body, status, err = m.Main().Fetch(ctx, "http://blocked.invalid/")
	require.NoError(t, err)
	assert.Zero(t, status)
	assert.Empty(t, body)

	assert.Equal(t, 1, h.Stats().Libraries)
	assert.Zero(t, m.Bridge().Outstanding())
}

func TestHost_FetchFromWorkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("id")))
	}))
	defer srv.Close()

	h, m, _ := newTestHost(t, Config{})

	var mu sync.Mutex
	got := map[string]bool{}
	for i := 0; i < 4; i++ {
		id := fmt.Sprint(i)
		_, err := m.Main().Spawn(func(w *module.Context) {
			body, _, err := w.Fetch(context.Background(), srv.URL+"/?id="+id)
			if err != nil {
				w.LogError(err.Error())
				return
			}
			mu.Lock()
			got[string(body)] = true
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	h.Wait()

	assert.Len(t, got, 4)
	assert.Zero(t, m.Bridge().Outstanding())
}

func TestHost_Sleep(t *testing.T) {
	_, m, _ := newTestHost(t, Config{})

	start := time.Now()
	require.NoError(t, m.Main().Sleep(context.Background(), 15*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestHost_CloseStopsTimers(t *testing.T) {
	h, m, _ := newTestHost(t, Config{})

	op, err := m.Main().SleepOp(time.Hour)
	require.NoError(t, err)
	handle := module.Go(m.Main(), op)
	m.Main().Executor().RunUntilStalled()
	assert.Equal(t, 1, m.Bridge().Outstanding())

	h.mu.Lock()
	lib := h.libs[h.ids[TimerLibrary]].(*timerLibrary)
	h.mu.Unlock()
	assert.Equal(t, 1, lib.Pending())

	require.NoError(t, h.Close())
	assert.Zero(t, lib.Pending())
	handle.Cancel()
}

func TestHost_UnknownLibrary(t *testing.T) {
	_, m, logs := newTestHost(t, Config{})

	_, err := m.Main().Library("does-not-exist")
	assert.ErrorIs(t, err, errors.ErrNoResult)
	assert.Equal(t, 1, logs.FilterMessage("unknown library").Len())
	assert.Zero(t, m.Main().Call(42, 0, nil))
}

func TestHost_CustomLibrary(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	h := New(Config{}, WithLogger(zap.New(core)), WithLibrary("echo", func(h *Host) Library {
		return echoLibrary{h: h}
	}))
	m := module.New(h, module.Config{})
	h.Bind(m)
	defer m.Close()
	defer h.Close()

	id, err := m.Main().Library("echo")
	require.NoError(t, err)
	data, result := m.Main().Channel().CallWithResult(id, 0, []byte("ping"))
	assert.Equal(t, uint32(4), result)
	assert.Equal(t, "ping", string(data))
}

type echoLibrary struct {
	h *Host
}

func (e echoLibrary) Handle(call Call) uint32 {
	if err := hostcall.Write(call.Caller, call.Payload); err != nil {
		return 0
	}
	return uint32(len(call.Payload))
}

func (echoLibrary) Close() error { return nil }

func TestHost_DeliverAfterClose(t *testing.T) {
	h, m, _ := newTestHost(t, Config{})
	require.NoError(t, h.Close())

	assert.False(t, h.Deliver(m.Main(), 1, nil))
	assert.Equal(t, uint64(1), h.Stats().Dropped)
	assert.Zero(t, m.Main().Call(hostcall.LibraryBuiltin, hostcall.CmdParallelism, nil))
}

func TestHost_LateCompletionsAfterWorkersExit(t *testing.T) {
	h, m, _ := newTestHost(t, Config{})

	const n = 20
	for i := 0; i < n; i++ {
		_, err := m.Main().Spawn(func(w *module.Context) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
			defer cancel()
			if err := w.Sleep(ctx, 50*time.Millisecond); err == nil {
				t.Error("sleep outlived its context")
			}
		})
		require.NoError(t, err)
	}
	h.Wait()
	assert.Equal(t, 1, h.Stats().Loops, "only main keeps a delivery loop")

	require.Eventually(t, func() bool { return h.Stats().Delivered == n },
		5*time.Second, 5*time.Millisecond)
	assert.Zero(t, m.Bridge().Outstanding())

	stats := h.Stats()
	assert.Equal(t, 1, stats.Loops, "late completions must not recreate loops")
	assert.Equal(t, uint64(n), stats.Late)
	assert.Equal(t, uint64(n), stats.Delivered)
	assert.Equal(t, uint64(n), m.Bridge().Stats().Orphaned)
	assert.Zero(t, m.Heap().InUse())
}
