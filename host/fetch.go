package host

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/completion"
)

// fetchLibrary performs HTTP GETs for the module. Requests that are not
// allowed or fail complete with status 0.
type fetchLibrary struct {
	host     *Host
	allowed  map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func newFetchLibrary(h *Host) Library {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fetchLibrary{host: h, ctx: ctx, cancel: cancel}
	if len(h.cfg.AllowedHosts) > 0 {
		f.allowed = make(map[string]struct{}, len(h.cfg.AllowedHosts))
		for _, host := range h.cfg.AllowedHosts {
			f.allowed[host] = struct{}{}
		}
	}
	return f
}

func (f *fetchLibrary) Handle(call Call) uint32 {
	if call.Command != completion.CmdFetch {
		return 0
	}
	token, raw, err := completion.ParseFetchRequest(call.Payload)
	if err != nil {
		f.host.log.Warn("malformed fetch request", zap.String("context", call.Caller.Name()), zap.Error(err))
		return 0
	}

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		status, body := f.get(raw)
		f.host.Deliver(call.Caller, token, completion.FetchResult(status, body))
	}()
	return 1
}

func (f *fetchLibrary) permitted(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if f.allowed == nil {
		return true
	}
	if _, ok := f.allowed[u.Host]; ok {
		return true
	}
	_, ok := f.allowed[u.Hostname()]
	return ok
}

func (f *fetchLibrary) get(raw string) (uint32, []byte) {
	log := f.host.log.With(zap.String("url", raw))
	if !f.permitted(raw) {
		log.Warn("fetch not allowed")
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(f.ctx, f.host.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		log.Warn("fetch request", zap.Error(err))
		return 0, nil
	}
	resp, err := f.host.client.Do(req)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		return 0, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.host.cfg.MaxResponseBytes))
	if err != nil {
		log.Warn("fetch body", zap.Error(err))
		return 0, nil
	}
	log.Debug("fetched", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))
	return uint32(resp.StatusCode), body
}

func (f *fetchLibrary) Close() error {
	f.cancel()
	f.inflight.Wait()
	return nil
}
