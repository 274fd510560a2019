package resource

import (
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
)

type record struct {
	id int
}

func TestOwned_LeakReclaim(t *testing.T) {
	table := NewTable()
	records := NewOwned[*record](table, TypeCompletion)

	r := &record{id: 7}
	h, err := records.Leak(r)
	if err != nil {
		t.Fatalf("Leak: %v", err)
	}
	if records.Len() != 1 {
		t.Fatalf("Len = %d, want 1", records.Len())
	}

	got, ok := records.Reclaim(h)
	if !ok || got != r {
		t.Fatal("Reclaim should return the leaked value")
	}
	if _, ok := records.Reclaim(h); ok {
		t.Fatal("Reclaim must succeed only once")
	}
	if records.Len() != 0 {
		t.Fatalf("Len = %d, want 0", records.Len())
	}
}

func TestOwned_TypeIsolation(t *testing.T) {
	table := NewTable()
	records := NewOwned[*record](table, TypeCompletion)
	bundles := NewOwned[string](table, TypeWorkerBundle)

	h, _ := records.Leak(&record{})
	if _, ok := bundles.Reclaim(h); ok {
		t.Fatal("a completion handle must not reclaim as a bundle")
	}
	if _, ok := records.Reclaim(h); !ok {
		t.Fatal("handle should still be reclaimable with its own type")
	}
}

func TestOwned_LeakAfterClose(t *testing.T) {
	table := NewTable()
	records := NewOwned[*record](table, TypeCompletion)
	_ = table.Close()

	_, err := records.Leak(&record{})
	if !errors.Is(err, bridgeerrors.ErrAllocation) {
		t.Fatalf("Leak after close = %v, want allocation error", err)
	}
}
