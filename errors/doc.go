// Package errors provides structured error types for the wasm bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
//
//	err := errors.New(errors.PhaseCall, errors.KindNoResult).
//		Path("library 3", "command 0").
//		Detail("host returned no result").
//		Build()
//
// Boundary failures use KindNoResult and are ordinary return values.
// Allocation failures on the worker spawn path are raised as panics
// carrying an *Error of KindAllocation.
//
// Sentinels such as ErrNoResult match any phase:
//
//	if errors.Is(err, bridgeerrors.ErrNoResult) { ... }
package errors
