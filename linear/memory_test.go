package linear

import (
	"errors"
	"testing"

	wasmbridge "github.com/wippyai/wasm-bridge"
	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
)

func TestMemory_ReadWrite(t *testing.T) {
	m := NewMemory(1, 4)

	if err := m.Write(100, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := m.Read(100, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Read = %q, want hello", data)
	}

	// Read returns a copy
	data[0] = 'j'
	again, _ := m.Read(100, 5)
	if string(again) != "hello" {
		t.Fatal("mutating a read result must not change memory")
	}

	if err := m.WriteU32(8, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	v, err := m.ReadU32(8)
	if err != nil || v != 0xdeadbeef {
		t.Fatalf("ReadU32 = %#x, %v", v, err)
	}
}

func TestMemory_OutOfBounds(t *testing.T) {
	m := NewMemory(1, 1)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"read past end", func() error { _, err := m.Read(wasmbridge.PageSize-2, 4); return err }},
		{"write past end", func() error { return m.Write(wasmbridge.PageSize, []byte{1}) }},
		{"u32 past end", func() error { _, err := m.ReadU32(wasmbridge.PageSize - 3); return err }},
		{"offset overflow", func() error { _, err := m.Read(0xffffffff, 2); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			var be *bridgeerrors.Error
			if !errors.As(err, &be) || be.Kind != bridgeerrors.KindOutOfBounds {
				t.Fatalf("got %v, want out_of_bounds", err)
			}
		})
	}
}

func TestMemory_Grow(t *testing.T) {
	m := NewMemory(1, 3)
	if err := m.Write(10, []byte{7}); err != nil {
		t.Fatal(err)
	}

	prev, ok := m.Grow(2)
	if !ok || prev != 1 {
		t.Fatalf("Grow = %d, %v", prev, ok)
	}
	if m.Pages() != 3 {
		t.Fatalf("Pages = %d, want 3", m.Pages())
	}
	b, _ := m.Read(10, 1)
	if b[0] != 7 {
		t.Fatal("Grow must preserve contents")
	}

	if _, ok := m.Grow(1); ok {
		t.Fatal("Grow beyond max should fail")
	}
}
