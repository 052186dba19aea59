package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which part of the bridge the error came from
type Phase string

const (
	PhaseHandle    Phase = "handle"    // handle table operations
	PhaseDoc       Phase = "doc"       // document owner lifecycle
	PhaseTxn       Phase = "txn"       // transaction protocol
	PhaseContainer Phase = "container" // container read/mutate operations
	PhaseObserve   Phase = "observe"   // subscription register/unregister
	PhaseDispatch  Phase = "dispatch"  // observer callback delivery
	PhaseCodec     Phase = "codec"     // update/state-vector encode/decode
	PhaseHost      Phase = "host"      // host runtime capability calls
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle Kind = "invalid_handle"
	KindStaleHandle   Kind = "stale_handle"
	KindTypeMismatch  Kind = "type_mismatch"
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindOutOfRange    Kind = "out_of_range"
	KindReadOnly      Kind = "read_only"
	KindDestroyed     Kind = "destroyed"
	KindDuplicate     Kind = "duplicate"
	KindAttachFailed  Kind = "attach_failed"
	KindInvokeFailed  Kind = "invoke_failed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Two bridge errors match when phase and kind agree.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the logical path (container name, map key, ...)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle reports a zero or never-allocated handle.
func InvalidHandle(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("invalid %s handle", what),
	}
}

// StaleHandle reports a handle whose slot has since been freed or reused.
func StaleHandle(phase Phase, what string, handle uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("stale %s handle %#x", what, handle),
		Value:  handle,
	}
}

// TypeMismatch reports a handle resolved to an object of the wrong kind.
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// OutOfRange creates an out-of-range error for positional access
func OutOfRange(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfRange,
		Detail: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Value:  index,
	}
}

// ReadOnly reports a mutation attempted through a read transaction.
func ReadOnly(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReadOnly,
		Detail: fmt.Sprintf("%s requires a write transaction", op),
	}
}

// Destroyed reports an operation against an already-destroyed owner.
func Destroyed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDestroyed,
		Detail: fmt.Sprintf("%s has been destroyed", what),
	}
}

// Duplicate reports a subscription id that is already registered.
func Duplicate(phase Phase, what string, id uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("%s %d already registered", what, id),
		Value:  id,
	}
}

// AttachFailed reports a failed host-runtime thread attachment.
func AttachFailed(cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindAttachFailed,
		Detail: "attach thread to host runtime",
		Cause:  cause,
	}
}

// InvokeFailed reports a failed callback invocation on the host target.
func InvokeFailed(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInvokeFailed,
		Detail: fmt.Sprintf("invoke %s", method),
		Cause:  cause,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
