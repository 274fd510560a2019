package completion

import (
	"encoding/binary"
	"time"

	"github.com/wippyai/wasm-bridge/errors"
)

// Commands understood by the bundled host libraries.
const (
	// FetchLibrary is the source name of the HTTP fetch library.
	FetchLibrary = "fetch"
	// CmdFetch starts a GET request. Payload: token u32 || url bytes.
	CmdFetch uint32 = 0

	// TimerLibrary is the source name of the timer library.
	TimerLibrary = "timer"
	// CmdSleep completes after a delay. Payload: token u32, millis u32.
	CmdSleep uint32 = 0
)

// FetchRequest encodes the payload of a fetch command.
func FetchRequest(token uint32, url string) []byte {
	out := make([]byte, 4+len(url))
	binary.LittleEndian.PutUint32(out, token)
	copy(out[4:], url)
	return out
}

// ParseFetchRequest is the host-side inverse of FetchRequest.
func ParseFetchRequest(payload []byte) (token uint32, url string, err error) {
	if len(payload) < 4 {
		return 0, "", errors.InvalidData(errors.PhaseHost, "fetch payload shorter than token")
	}
	return binary.LittleEndian.Uint32(payload), string(payload[4:]), nil
}

// FetchResult encodes the completion data of a fetch: status u32 || body.
// Status 0 means the request failed before a response arrived.
func FetchResult(status uint32, body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, status)
	copy(out[4:], body)
	return out
}

// ParseFetchResult splits fetch completion data into status and body.
func ParseFetchResult(data []byte) (status uint32, body []byte, err error) {
	if len(data) < 4 {
		return 0, nil, errors.InvalidData(errors.PhaseComplete, "fetch result shorter than status")
	}
	return binary.LittleEndian.Uint32(data), data[4:], nil
}

// SleepRequest encodes the payload of a sleep command. Durations are
// rounded down to milliseconds and clamped to the u32 range.
func SleepRequest(token uint32, d time.Duration) []byte {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 0xffffffff {
		ms = 0xffffffff
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out, token)
	binary.LittleEndian.PutUint32(out[4:], uint32(ms))
	return out
}

// ParseSleepRequest is the host-side inverse of SleepRequest.
func ParseSleepRequest(payload []byte) (token uint32, d time.Duration, err error) {
	if len(payload) != 8 {
		return 0, 0, errors.InvalidData(errors.PhaseHost, "sleep payload must be 8 bytes")
	}
	token = binary.LittleEndian.Uint32(payload)
	ms := binary.LittleEndian.Uint32(payload[4:])
	return token, time.Duration(ms) * time.Millisecond, nil
}
