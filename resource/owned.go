package resource

import (
	"github.com/wippyai/wasm-bridge/errors"
)

// Owned hands out single-use handles for values of one type.
//
// Leak moves a value into the table and returns the integer that stands in
// for it on the other side of the boundary. Reclaim moves it back out and
// succeeds exactly once per handle; any later Reclaim with the same handle,
// or with a handle of another type, fails.
type Owned[T any] struct {
	table  *UnifiedTable
	typeID uint32
}

// NewOwned creates an Owned view over table for values tagged typeID.
func NewOwned[T any](table *UnifiedTable, typeID uint32) *Owned[T] {
	return &Owned[T]{table: table, typeID: typeID}
}

// Leak stores v and returns its handle.
func (o *Owned[T]) Leak(v T) (Handle, error) {
	h := o.table.Insert(o.typeID, v)
	if h == 0 {
		return 0, errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Detail("no handle available for type %d", o.typeID).
			Build()
	}
	return h, nil
}

// Reclaim removes and returns the value behind h.
func (o *Owned[T]) Reclaim(h Handle) (T, bool) {
	var zero T
	v, ok := o.table.Take(h, o.typeID)
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// Len returns the number of values currently leaked.
func (o *Owned[T]) Len() int {
	return o.table.CountType(o.typeID)
}
