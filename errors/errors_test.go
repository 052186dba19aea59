package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "phase and kind only",
			err:  &Error{Phase: PhaseHandle, Kind: KindInvalidHandle},
			want: "[handle] invalid_handle",
		},
		{
			name: "with detail",
			err:  InvalidHandle(PhaseDoc, "document"),
			want: "[doc] invalid_handle: invalid document handle",
		},
		{
			name: "with path",
			err: New(PhaseContainer, KindNotFound).
				Path("root", "items").
				Detail("no such key").
				Build(),
			want: "[container] not_found at root.items: no such key",
		},
		{
			name: "with cause",
			err:  Wrap(PhaseCodec, KindInvalidData, stderrors.New("short buffer"), "decode update"),
			want: "[codec] invalid_data: decode update (caused by: short buffer)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := StaleHandle(PhaseHandle, "document", 0xdeadbeef)

	if !stderrors.Is(err, &Error{Phase: PhaseHandle, Kind: KindStaleHandle}) {
		t.Fatal("expected Is to match on phase+kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseHandle, Kind: KindInvalidHandle}) {
		t.Fatal("Is should not match a different kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseTxn, Kind: KindStaleHandle}) {
		t.Fatal("Is should not match a different phase")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := AttachFailed(cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected Unwrap chain to reach cause")
	}
}

func TestBuilderDetailFormatting(t *testing.T) {
	err := New(PhaseObserve, KindDuplicate).
		Detail("subscription %d already registered", 42).
		Build()

	if !strings.Contains(err.Error(), "subscription 42") {
		t.Fatalf("formatted detail missing: %s", err.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{InvalidHandle(PhaseTxn, "transaction"), PhaseTxn, KindInvalidHandle},
		{StaleHandle(PhaseHandle, "list", 7), PhaseHandle, KindStaleHandle},
		{TypeMismatch(PhaseHandle, "map", "text"), PhaseHandle, KindTypeMismatch},
		{NotFound(PhaseContainer, "key", "missing"), PhaseContainer, KindNotFound},
		{OutOfRange(PhaseContainer, 5, 3), PhaseContainer, KindOutOfRange},
		{ReadOnly(PhaseTxn, "insert"), PhaseTxn, KindReadOnly},
		{Destroyed(PhaseDoc, "document"), PhaseDoc, KindDestroyed},
		{Duplicate(PhaseObserve, "subscription", 1), PhaseObserve, KindDuplicate},
		{InvokeFailed("OnDocumentEvent", stderrors.New("x")), PhaseHost, KindInvokeFailed},
		{InvalidInput(PhaseCodec, "empty update"), PhaseCodec, KindInvalidInput},
	}

	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Fatalf("%s: got (%s, %s), want (%s, %s)",
				tt.err.Error(), tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
	}
}
