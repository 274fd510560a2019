package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate is a future that becomes ready when opened from outside.
type gate struct {
	mu      sync.Mutex
	open    bool
	value   int
	waker   Waker
	polls   int
	dropped bool
}

func (g *gate) Poll(w Waker) Poll[int] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	if g.open {
		return Ready(g.value, nil)
	}
	g.waker = w
	return Pending[int]()
}

func (g *gate) Open(v int) {
	g.mu.Lock()
	g.open = true
	g.value = v
	w := g.waker
	g.waker = nil
	g.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func (g *gate) Drop() {
	g.mu.Lock()
	g.dropped = true
	g.mu.Unlock()
}

func TestBlockOn_Ready(t *testing.T) {
	fut := FutureFunc[string](func(Waker) Poll[string] {
		return Ready("done", nil)
	})
	v, err := BlockOn(context.Background(), fut)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestBlockOn_WakesFromOtherGoroutine(t *testing.T) {
	g := &gate{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Open(7)
	}()

	v, err := BlockOn(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.GreaterOrEqual(t, g.polls, 2)
}

func TestBlockOn_ContextCancelDrops(t *testing.T) {
	g := &gate{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := BlockOn(ctx, g)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, g.dropped)
}

func TestSignal_Coalesces(t *testing.T) {
	s := NewSignal()
	s.Wake()
	s.Wake()
	s.Wake()

	<-s.C()
	select {
	case <-s.C():
		t.Fatal("wakes should coalesce")
	default:
	}
}

func TestExecutor_OutOfOrderWakes(t *testing.T) {
	x := NewExecutor()
	a, b := &gate{}, &gate{}
	ha := Spawn[int](x, a)
	hb := Spawn[int](x, b)

	assert.Equal(t, 2, x.RunUntilStalled())
	assert.Equal(t, 2, x.Live())

	b.Open(2)
	assert.Equal(t, 1, x.RunUntilStalled())
	select {
	case <-hb.Done():
	default:
		t.Fatal("b should be done")
	}
	select {
	case <-ha.Done():
		t.Fatal("a must not complete from b's wake")
	default:
	}

	a.Open(1)
	require.NoError(t, x.Run(context.Background()))

	va, _ := ha.Result()
	vb, _ := hb.Result()
	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)
	assert.Equal(t, 0, x.Live())
}

func TestExecutor_DuplicateWakesPollOnce(t *testing.T) {
	x := NewExecutor()
	g := &gate{}
	Spawn[int](x, g)
	x.RunUntilStalled()

	w := g.waker
	w.Wake()
	w.Wake()
	assert.Equal(t, 1, x.RunUntilStalled())
}

func TestExecutor_Cancel(t *testing.T) {
	x := NewExecutor()
	g := &gate{}
	h := Spawn[int](x, g)
	x.RunUntilStalled()

	h.Cancel()
	assert.True(t, g.dropped)
	assert.Equal(t, 0, x.Live())

	// A late wake must not poll the cancelled task.
	polls := g.polls
	g.Open(5)
	x.RunUntilStalled()
	assert.Equal(t, polls, g.polls)
}

func TestExecutor_RunStopsOnContext(t *testing.T) {
	x := NewExecutor()
	Spawn[int](x, &gate{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, x.Run(ctx), context.DeadlineExceeded)
}
