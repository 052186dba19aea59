// Package errors provides structured error types for the bridge.
//
// Every boundary-crossing failure is reported as an *Error carrying a Phase
// (where it happened) and a Kind (what class of failure it is). Callers match
// with errors.Is against a prototype:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseHandle, Kind: errors.KindStaleHandle}) {
//	    // handle was freed and its slot reused
//	}
//
// Use the convenience constructors for the recurring cases and the Builder
// when a path or cause needs to be attached.
package errors
