package handle

import (
	stderrors "errors"
	"testing"

	"github.com/edpaget/ycrdt-bridge/errors"
)

func TestArena_Basic(t *testing.T) {
	a := NewArena[string]("thing")

	h, err := a.Insert("test")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == Zero {
		t.Fatal("expected non-zero handle")
	}

	val, err := a.Get(h)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("expected 'test', got %q", val)
	}

	val, err = a.Remove(h)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("expected 'test', got %q", val)
	}

	if a.Len() != 0 {
		t.Fatal("expected Len() == 0 after Remove")
	}
}

func TestArena_ZeroHandle(t *testing.T) {
	a := NewArena[int]("thing")

	if _, err := a.Get(Zero); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHandle, Kind: errors.KindInvalidHandle}) {
		t.Fatalf("Get(0) = %v, want invalid_handle", err)
	}

	// Freeing handle 0 is a no-op, not an error.
	if _, err := a.Remove(Zero); err != nil {
		t.Fatalf("Remove(0) = %v, want nil", err)
	}
}

func TestArena_StaleHandle(t *testing.T) {
	a := NewArena[string]("thing")

	h, _ := a.Insert("first")
	if _, err := a.Remove(h); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// Slot reuse must not let the old handle see the new value.
	h2, _ := a.Insert("second")
	if h2 == h {
		t.Fatal("expected generation bump to change the handle")
	}

	if _, err := a.Get(h); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHandle, Kind: errors.KindStaleHandle}) {
		t.Fatalf("Get(stale) = %v, want stale_handle", err)
	}
	if _, err := a.Remove(h); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHandle, Kind: errors.KindStaleHandle}) {
		t.Fatalf("Remove(stale) = %v, want stale_handle", err)
	}

	val, err := a.Get(h2)
	if err != nil || val != "second" {
		t.Fatalf("Get(h2) = (%q, %v), want (second, nil)", val, err)
	}
}

func TestArena_SlotReuse(t *testing.T) {
	a := NewArena[int]("thing")

	h1, _ := a.Insert(1)
	a.Remove(h1)
	h2, _ := a.Insert(2)

	// Same slot, different generation.
	if uint32(h1) != uint32(h2) {
		t.Fatalf("expected slot reuse, got slots %d and %d", uint32(h1), uint32(h2))
	}
	if h1.generation() == h2.generation() {
		t.Fatal("expected different generations")
	}
}

func TestArena_Each(t *testing.T) {
	a := NewArena[string]("thing")
	a.Insert("a")
	a.Insert("b")
	a.Insert("c")

	seen := map[string]bool{}
	a.Each(func(h Handle, v string) bool {
		seen[v] = true
		return true
	})
	if len(seen) != 3 {
		t.Fatalf("expected 3 entries, saw %d", len(seen))
	}
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestArena_Close(t *testing.T) {
	a := NewArena[*dropCounter]("thing")
	d1 := &dropCounter{}
	d2 := &dropCounter{}
	a.Insert(d1)
	a.Insert(d2)

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d1.count != 1 || d2.count != 1 {
		t.Fatalf("expected each Drop called once, got %d and %d", d1.count, d2.count)
	}

	if _, err := a.Insert(&dropCounter{}); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHandle, Kind: errors.KindDestroyed}) {
		t.Fatalf("Insert after Close = %v, want destroyed", err)
	}
}

func TestArena_Drain(t *testing.T) {
	a := NewArena[int]("thing")
	a.Insert(1)
	a.Insert(2)

	vals := a.Drain()
	if len(vals) != 2 {
		t.Fatalf("expected 2 drained values, got %d", len(vals))
	}
	if a.Len() != 0 {
		t.Fatal("expected empty arena after Drain")
	}

	// Arena still usable after Drain (unlike Close).
	if _, err := a.Insert(3); err != nil {
		t.Fatalf("Insert after Drain failed: %v", err)
	}
}
