package hostcall

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/linear"
	"github.com/wippyai/wasm-bridge/scratch"
)

type message struct {
	library, command uint32
	payload          []byte
}

// recordingHost answers every message with a fixed result and can write a
// reply into scratch while the call is in progress.
type recordingHost struct {
	mu       sync.Mutex
	messages []message
	result   uint32
	reply    []byte
}

func (h *recordingHost) Message(c Caller, library, command, ptr, length uint32) uint32 {
	payload, _ := ReadPayload(c, ptr, length)
	h.mu.Lock()
	h.messages = append(h.messages, message{library, command, payload})
	reply, result := h.reply, h.result
	h.mu.Unlock()
	if reply != nil {
		if err := Write(c, reply); err != nil {
			return 0
		}
	}
	return result
}

type testCaller struct {
	sync.Mutex
	mem       *linear.Memory
	scratch   *scratch.Buffer
	completed []uint32
	entered   []uint32
}

func newTestCaller() (*testCaller, *linear.Heap) {
	mem := linear.NewMemory(1, 0)
	heap := linear.NewHeap(mem, 1024)
	return &testCaller{mem: mem, scratch: scratch.New(mem, heap)}, heap
}

func (c *testCaller) Name() string                            { return "test" }
func (c *testCaller) Memory() wasmbridge.Memory                { return c.mem }
func (c *testCaller) ReserveScratch(n uint32) (uint32, error) { return c.scratch.Reserve(n) }
func (c *testCaller) Complete(token uint32) error {
	c.completed = append(c.completed, token)
	return nil
}
func (c *testCaller) EnterWorker(bundle uint32) error {
	c.entered = append(c.entered, bundle)
	return nil
}

func TestChannel_CallStagesPayload(t *testing.T) {
	caller, heap := newTestCaller()
	host := &recordingHost{result: 9}
	ch := NewChannel(host, caller, heap, caller.scratch)

	r := ch.Call(LibraryBuiltin, CmdLog, []byte("hi there"))
	assert.Equal(t, uint32(9), r)
	require.Len(t, host.messages, 1)
	assert.Equal(t, []byte("hi there"), host.messages[0].payload)
	assert.Equal(t, CmdLog, host.messages[0].command)
	assert.Zero(t, heap.Blocks(), "payload staging must be released after the call")
}

func TestChannel_EmptyPayload(t *testing.T) {
	caller, heap := newTestCaller()
	host := &recordingHost{result: 64}
	ch := NewChannel(host, caller, heap, caller.scratch)

	v, ok := ch.Lookup(LibraryBuiltin, CmdTLSSize, nil)
	assert.True(t, ok)
	assert.Equal(t, uint32(64), v)
	assert.Nil(t, host.messages[0].payload)
}

func TestChannel_NoResult(t *testing.T) {
	caller, heap := newTestCaller()
	ch := NewChannel(&recordingHost{}, caller, heap, caller.scratch)

	_, ok := ch.Lookup(LibraryNull, 5, []byte{1})
	assert.False(t, ok)
}

func TestChannel_CallWithResult(t *testing.T) {
	caller, heap := newTestCaller()
	host := &recordingHost{result: 1, reply: []byte("answer")}
	ch := NewChannel(host, caller, heap, caller.scratch)

	data, r := ch.CallWithResult(3, 0, []byte("q"))
	assert.Equal(t, uint32(1), r)
	assert.Equal(t, []byte("answer"), data)
	assert.Zero(t, heap.Blocks())
	assert.True(t, caller.TryLock(), "lock must be released after the exchange")
	caller.Unlock()
}

func TestDeliver(t *testing.T) {
	caller, heap := newTestCaller()

	require.NoError(t, Deliver(caller, 77, []byte("payload")))
	assert.Equal(t, []uint32{77}, caller.completed)

	// Complete did not drain, so the bytes are still staged.
	data, err := caller.scratch.Take()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Zero(t, heap.Blocks())
}

func TestLibraries_RegisterOnce(t *testing.T) {
	caller, heap := newTestCaller()
	host := &recordingHost{result: 5}
	ch := NewChannel(host, caller, heap, caller.scratch)
	libs := NewLibraries()

	for i := 0; i < 3; i++ {
		id, err := libs.Get(ch, "fetch")
		require.NoError(t, err)
		assert.Equal(t, uint32(5), id)
	}
	assert.Len(t, host.messages, 1)
	assert.Equal(t, []byte("fetch"), host.messages[0].payload)
	assert.Equal(t, CmdRegisterLibrary, host.messages[0].command)
	assert.Equal(t, 1, libs.Len())
}

func TestLibraries_RejectedNotCached(t *testing.T) {
	caller, heap := newTestCaller()
	host := &recordingHost{}
	ch := NewChannel(host, caller, heap, caller.scratch)
	libs := NewLibraries()

	_, err := libs.Get(ch, "missing")
	assert.ErrorIs(t, err, errors.ErrNoResult)

	host.result = 4
	id, err := libs.Get(ch, "missing")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), id)
}

func TestPayloadU32s(t *testing.T) {
	b := PutU32s(1, 0x10000, 0xffffffff)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 1, 0, 0xff, 0xff, 0xff, 0xff}, b)

	vals, err := U32s(b, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0x10000, 0xffffffff}, vals)

	_, err = U32s(b[:5], 3)
	assert.Error(t, err)
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "spawn_worker", CommandName(CmdSpawnWorker))
	assert.Equal(t, "unknown", CommandName(99))
}
