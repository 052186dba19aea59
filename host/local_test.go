package host

import (
	stderrors "errors"
	"testing"

	"github.com/edpaget/ycrdt-bridge/errors"
)

func TestLocalRuntimeInvokeFunc(t *testing.T) {
	rt := NewLocalRuntime()

	var got []byte
	ref, err := rt.Pin(func(payload []byte) error {
		got = payload
		return nil
	})
	if err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	defer ref.Release()

	att, err := rt.Attach()
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer att.Detach()

	if err := att.Invoke(ref, "", []byte("hello")); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("payload = %q", got)
	}
}

type recorder struct {
	calls [][]byte
}

func (r *recorder) OnEvent(payload []byte) error {
	r.calls = append(r.calls, payload)
	return nil
}

func (r *recorder) Fire(payload []byte) {
	r.calls = append(r.calls, payload)
}

func TestLocalRuntimeInvokeMethodByName(t *testing.T) {
	rt := NewLocalRuntime()
	rec := &recorder{}

	ref, _ := rt.Pin(rec)
	defer ref.Release()

	att, _ := rt.Attach()
	defer att.Detach()

	if err := att.Invoke(ref, "OnEvent", []byte("a")); err != nil {
		t.Fatalf("Invoke(OnEvent) failed: %v", err)
	}
	if err := att.Invoke(ref, "Fire", []byte("b")); err != nil {
		t.Fatalf("Invoke(Fire) failed: %v", err)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(rec.calls))
	}

	err := att.Invoke(ref, "Missing", nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindNotFound}) {
		t.Fatalf("Invoke(Missing) = %v, want not_found", err)
	}
}

func TestLocalRuntimeRejectsBadSignature(t *testing.T) {
	rt := NewLocalRuntime()
	ref, _ := rt.Pin(func(a, b int) {})
	defer ref.Release()

	att, _ := rt.Attach()
	defer att.Detach()

	err := att.Invoke(ref, "", nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindInvokeFailed}) {
		t.Fatalf("Invoke = %v, want invoke_failed", err)
	}
}

func TestLocalRuntimeRefAccounting(t *testing.T) {
	rt := NewLocalRuntime()

	ref1, _ := rt.Pin(func([]byte) {})
	ref2, _ := rt.Pin(func([]byte) {})
	if rt.LiveRefs() != 2 {
		t.Fatalf("LiveRefs = %d, want 2", rt.LiveRefs())
	}

	ref1.Release()
	ref1.Release() // idempotent
	if rt.LiveRefs() != 1 {
		t.Fatalf("LiveRefs after release = %d, want 1", rt.LiveRefs())
	}
	ref2.Release()
	if rt.LiveRefs() != 0 {
		t.Fatalf("LiveRefs = %d, want 0", rt.LiveRefs())
	}
}

func TestLocalRuntimeReleasedRefCannotBeInvoked(t *testing.T) {
	rt := NewLocalRuntime()
	ref, _ := rt.Pin(func([]byte) {})
	ref.Release()

	att, _ := rt.Attach()
	defer att.Detach()

	err := att.Invoke(ref, "", nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindDestroyed}) {
		t.Fatalf("Invoke on released ref = %v, want destroyed", err)
	}
}

func TestLocalRuntimeAttachmentLifecycle(t *testing.T) {
	rt := NewLocalRuntime()

	att, _ := rt.Attach()
	if rt.Attachments() != 1 {
		t.Fatalf("Attachments = %d, want 1", rt.Attachments())
	}
	if err := att.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := att.Detach(); err == nil {
		t.Fatal("double Detach should fail")
	}
	if rt.Attachments() != 0 {
		t.Fatalf("Attachments = %d, want 0", rt.Attachments())
	}

	ref, _ := rt.Pin(func([]byte) {})
	defer ref.Release()
	if err := att.Invoke(ref, "", nil); err == nil {
		t.Fatal("Invoke after Detach should fail")
	}
}

func TestLocalRuntimeRejectsNilTargets(t *testing.T) {
	rt := NewLocalRuntime()

	if _, err := rt.Pin(nil); err == nil {
		t.Fatal("Pin accepted nil target")
	}

	var fn func([]byte) error
	if _, err := rt.Pin(fn); err == nil {
		t.Fatal("Pin accepted typed-nil func")
	}

	var target *struct{ X int }
	if _, err := rt.Pin(target); err == nil {
		t.Fatal("Pin accepted typed-nil pointer")
	}

	if rt.LiveRefs() != 0 {
		t.Fatalf("LiveRefs after rejected pins = %d, want 0", rt.LiveRefs())
	}
}
