package resource

import "sync/atomic"

// Counter is an Observer that tallies lifecycle events of one resource type.
type Counter struct {
	typeID    uint32
	created   atomic.Uint64
	reclaimed atomic.Uint64
	dropped   atomic.Uint64
}

var _ Observer = (*Counter)(nil)

// NewCounter creates a counter for typeID.
func NewCounter(typeID uint32) *Counter {
	return &Counter{typeID: typeID}
}

// OnResourceEvent implements Observer.
func (c *Counter) OnResourceEvent(e Event) {
	if e.TypeID != c.typeID {
		return
	}
	switch e.Type {
	case EventCreated:
		c.created.Add(1)
	case EventReclaimed:
		c.reclaimed.Add(1)
	case EventDropped:
		c.dropped.Add(1)
	}
}

// Created returns how many values were inserted.
func (c *Counter) Created() uint64 { return c.created.Load() }

// Reclaimed returns how many values were taken back out.
func (c *Counter) Reclaimed() uint64 { return c.reclaimed.Load() }

// Dropped returns how many values were removed and dropped by the table.
func (c *Counter) Dropped() uint64 { return c.dropped.Load() }
