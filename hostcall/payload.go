package hostcall

import (
	"encoding/binary"

	"github.com/wippyai/wasm-bridge/errors"
)

// PutU32s encodes values as consecutive little-endian u32s.
func PutU32s(values ...uint32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

// U32s decodes exactly n little-endian u32s from data.
func U32s(data []byte, n int) ([]uint32, error) {
	if len(data) != 4*n {
		return nil, errors.InvalidData(errors.PhaseHost, "payload length does not match u32 count")
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out, nil
}

// ReadPayload copies a message payload out of c's memory.
func ReadPayload(c Caller, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	data, err := c.Memory().Read(ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindOutOfBounds, err, "read payload")
	}
	return data, nil
}
