package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindNoResult,
				Path:   []string{"library 3", "command 0"},
				Detail: "host returned no result",
			},
			contains: []string{"[call]", "no_result", "library 3.command 0", "host returned no result"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseScratch,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[scratch]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseSpawn,
				Kind:   KindAllocation,
				Detail: "stack",
				Cause:  errors.New("memory full"),
			},
			contains: []string{"[spawn]", "allocation", "stack", "caused by", "memory full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseLoad, KindInvalidData, cause, "read module")

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause through chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseComplete,
		Kind:  KindInvalidToken,
	}

	if !err.Is(&Error{Phase: PhaseComplete, Kind: KindInvalidToken}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseSpawn, Kind: KindInvalidToken}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseComplete, Kind: KindNotFound}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrInvalidToken) {
		t.Error("sentinel without phase should match any phase")
	}
	if errors.Is(err, ErrNoResult) {
		t.Error("sentinel of another kind should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseHost, KindNotFound).
		Path("library", "fetch").
		Value(7).
		Cause(cause).
		Detail("command %d not handled", 7).
		Build()

	if err.Phase != PhaseHost {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseHost)
	}
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if len(err.Path) != 2 || err.Path[1] != "fetch" {
		t.Errorf("Path = %v, want [library fetch]", err.Path)
	}
	if err.Value != 7 {
		t.Errorf("Value = %v, want 7", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "command 7 not handled" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("NoResult", func(t *testing.T) {
		err := NoResult(1, 0)
		if err.Kind != KindNoResult || err.Phase != PhaseCall {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if !errors.Is(err, ErrNoResult) {
			t.Error("NoResult should match ErrNoResult")
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseSpawn, 1<<20, 65536, nil)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1048576") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("InvalidToken", func(t *testing.T) {
		err := InvalidToken(PhaseComplete, 0x10)
		if err.Value != uint32(0x10) {
			t.Errorf("Value = %v, want 0x10", err.Value)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseAlloc, 65530, 16, 65536)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if !strings.Contains(err.Detail, "65546") {
			t.Errorf("Detail = %v, should contain range end", err.Detail)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseHost, "event loop")
		if !errors.Is(err, ErrClosed) {
			t.Error("Closed should match ErrClosed")
		}
	})

	t.Run("Instantiation", func(t *testing.T) {
		err := Instantiation("worker-1", errors.New("boom"))
		if err.Phase != PhaseLoad || err.Kind != KindInstantiation {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})
}
