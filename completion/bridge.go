package completion

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/task"
)

// Issuer sends the host request for an operation, carrying token, and
// returns the host's immediate answer. 0 means the host did not accept it.
type Issuer func(token uint32) uint32

// Bridge matches host completions to the operations that are waiting on them.
type Bridge struct {
	table     *resource.UnifiedTable
	records   *resource.Owned[*Record]
	tokens    *resource.Counter
	log       *zap.Logger
	completed atomic.Uint64
	orphaned  atomic.Uint64
}

// NewBridge creates a bridge whose tokens are handles in table.
func NewBridge(table *resource.UnifiedTable) *Bridge {
	b := &Bridge{
		table:   table,
		records: resource.NewOwned[*Record](table, resource.TypeCompletion),
		tokens:  resource.NewCounter(resource.TypeCompletion),
		log:     Logger(),
	}
	table.Subscribe(b.tokens)
	return b
}

// Close stops counting token events. Stats keeps reporting the last values.
func (b *Bridge) Close() {
	b.table.Unsubscribe(b.tokens)
}

// Start returns an operation that issues its host request on first poll.
func (b *Bridge) Start(name string, issue Issuer) *Operation {
	return &Operation{bridge: b, name: name, issue: issue}
}

// issue hands rec to the host. Ownership of rec moves into the token table
// until Complete reclaims it.
func (b *Bridge) issue(rec *Record, issue Issuer) {
	h, err := b.records.Leak(rec)
	if err != nil {
		rec.finish(nil, err)
		return
	}
	token := uint32(h)
	rec.mu.Lock()
	rec.token = token
	rec.mu.Unlock()

	if issue(token) != 0 {
		return
	}

	// The host refused the request. If it did not complete it either, the
	// token is still ours to take back.
	if _, ok := b.records.Reclaim(h); ok {
		b.log.Debug("host refused operation", zap.String("op", rec.name), zap.Uint32("token", token))
		rec.finish(nil, errors.New(errors.PhaseCall, errors.KindNoResult).
			Path(rec.name).
			Detail("host returned no result").
			Build())
	}
}

// Complete delivers the result for token. drain is called under the
// record's lock to move the inbound bytes out of scratch; the waiting task
// is woken after the lock is released. A token completes at most once.
func (b *Bridge) Complete(token uint32, drain func() ([]byte, error)) error {
	rec, ok := b.records.Reclaim(resource.Handle(token))
	if !ok {
		b.log.Warn("completion for unknown token", zap.Uint32("token", token))
		return errors.InvalidToken(errors.PhaseComplete, token)
	}

	rec.mu.Lock()
	if rec.state == stateCompleted {
		rec.mu.Unlock()
		return errors.InvalidToken(errors.PhaseComplete, token)
	}
	data, err := drain()
	rec.state = stateCompleted
	rec.result, rec.err = data, err
	w := rec.waker
	rec.waker = nil
	abandoned := rec.abandoned
	rec.mu.Unlock()

	b.completed.Add(1)
	if abandoned {
		b.orphaned.Add(1)
		b.log.Debug("late completion for abandoned operation", zap.String("op", rec.name), zap.Uint32("token", token))
	}
	if w != nil {
		w.Wake()
	}
	return nil
}

// Outstanding returns the number of tokens currently held by the host.
func (b *Bridge) Outstanding() int {
	return b.records.Len()
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Issued      uint64
	Completed   uint64
	Orphaned    uint64
	Discarded   uint64
	Outstanding int
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Issued:      b.tokens.Created(),
		Completed:   b.completed.Load(),
		Orphaned:    b.orphaned.Load(),
		Discarded:   b.tokens.Dropped(),
		Outstanding: b.Outstanding(),
	}
}

// Operation is a future for one host-bridged request.
type Operation struct {
	bridge   *Bridge
	rec      *Record
	issue    Issuer
	name     string
	consumed bool
}

var _ task.Future[[]byte] = (*Operation)(nil)

// Poll issues the request on first use and reports the result once the host
// has completed it. Polling after a ready result panics.
func (op *Operation) Poll(w task.Waker) task.Poll[[]byte] {
	if op.consumed {
		panic("completion: operation " + op.name + " polled after completion")
	}
	if op.rec == nil {
		op.rec = &Record{name: op.name}
	}
	rec := op.rec

	rec.mu.Lock()
	if rec.state == stateNotStarted {
		rec.state = stateRunning
		rec.mu.Unlock()
		// The host may complete before issue returns; the record lock is
		// not held so that completion can proceed.
		op.bridge.issue(rec, op.issue)
		rec.mu.Lock()
	}

	if rec.state == stateCompleted {
		data, err := rec.result, rec.err
		rec.result = nil
		rec.mu.Unlock()
		op.consumed = true
		return task.Ready(data, err)
	}

	rec.waker = w
	rec.mu.Unlock()
	return task.Pending[[]byte]()
}

// Drop abandons the operation. A request already in flight keeps its
// record alive until the host's completion arrives and reclaims it.
func (op *Operation) Drop() {
	if op.rec == nil {
		return
	}
	op.rec.mu.Lock()
	op.rec.abandoned = true
	op.rec.waker = nil
	op.rec.mu.Unlock()
}

// Token returns the token of the in-flight request, or 0 if none was issued.
func (op *Operation) Token() uint32 {
	if op.rec == nil {
		return 0
	}
	return op.rec.Token()
}
