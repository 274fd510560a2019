package worker

import (
	"sync"
	"sync/atomic"
)

// TLSQuery asks the host for the thread-local storage layout.
type TLSQuery func() (size, align uint32)

// TLSLayout caches the thread-local storage size and alignment of the
// module. The host is asked once per process; concurrent first callers all
// observe the same pair.
type TLSLayout struct {
	query   TLSQuery
	size    uint32
	align   uint32
	queries atomic.Int32
	once    sync.Once
}

// NewTLSLayout creates a lazily-filled layout.
func NewTLSLayout(query TLSQuery) *TLSLayout {
	return &TLSLayout{query: query}
}

// Get returns the cached layout, querying the host on first use.
// A zero alignment is reported as 1.
func (l *TLSLayout) Get() (size, align uint32) {
	return l.Load(l.query)
}

// Load is Get with the first query sent through query instead of the
// layout's own querier. Once the layout is cached query is not called.
func (l *TLSLayout) Load(query TLSQuery) (size, align uint32) {
	if query == nil {
		query = l.query
	}
	l.once.Do(func() {
		l.queries.Add(1)
		l.size, l.align = query()
		if l.align == 0 {
			l.align = 1
		}
	})
	return l.size, l.align
}

// Queries returns how many times the host was asked.
func (l *TLSLayout) Queries() int {
	return int(l.queries.Load())
}
