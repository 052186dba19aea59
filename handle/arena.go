package handle

import (
	"sync"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// Handle is an opaque reference to an object in an Arena.
// Handle 0 is reserved and always invalid.
//
// The low 32 bits are a slot index (1-based), the high 32 bits are the slot's
// generation at allocation time. A freed slot bumps its generation, so a
// handle held past Remove resolves to a stale-handle error instead of the
// slot's next occupant.
type Handle uint64

// Zero is the reserved "no object" handle.
const Zero Handle = 0

func pack(idx, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx+1))
}

func (h Handle) index() (uint32, bool) {
	low := uint32(h)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// Dropper is optionally implemented by values that need cleanup when their
// slot is released by Close.
type Dropper interface {
	Drop()
}

// Arena is a generational handle table. It owns the values inserted into it
// until they are removed; Get borrows without transferring ownership.
type Arena[T any] struct {
	entries  []entry[T]
	freeList []uint32
	what     string
	mu       sync.RWMutex
	closed   bool
}

type entry[T any] struct {
	value      T
	generation uint32
	live       bool
}

// NewArena creates an empty arena. The what label names the object kind in
// error messages ("document", "transaction", ...).
func NewArena[T any](what string) *Arena[T] {
	return &Arena[T]{
		entries:  make([]entry[T], 0, 64),
		freeList: make([]uint32, 0, 16),
		what:     what,
	}
}

// Insert transfers ownership of value into the arena and returns its handle.
func (a *Arena[T]) Insert(value T) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Zero, errors.Destroyed(errors.PhaseHandle, a.what+" table")
	}

	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		e := &a.entries[idx]
		e.value = value
		e.live = true
		return pack(idx, e.generation), nil
	}

	a.entries = append(a.entries, entry[T]{value: value, generation: 1, live: true})
	return pack(uint32(len(a.entries)-1), 1), nil
}

// Get resolves a handle to its value without removing it.
// Handle 0 yields invalid_handle; a freed or reused slot yields stale_handle.
func (a *Arena[T]) Get(h Handle) (T, error) {
	var zero T

	idx, ok := h.index()
	if !ok {
		return zero, errors.InvalidHandle(errors.PhaseHandle, a.what)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if int(idx) >= len(a.entries) {
		return zero, errors.InvalidHandle(errors.PhaseHandle, a.what)
	}
	e := &a.entries[idx]
	if !e.live || e.generation != h.generation() {
		return zero, errors.StaleHandle(errors.PhaseHandle, a.what, uint64(h))
	}
	return e.value, nil
}

// Remove frees the handle's slot and returns its value to the caller.
// Removing handle 0 is a no-op. Removing an already-removed handle reports
// stale_handle rather than touching the slot's next occupant.
func (a *Arena[T]) Remove(h Handle) (T, error) {
	var zero T

	idx, ok := h.index()
	if !ok {
		// Freeing "no object" is always permitted.
		return zero, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if int(idx) >= len(a.entries) {
		return zero, errors.InvalidHandle(errors.PhaseHandle, a.what)
	}
	e := &a.entries[idx]
	if !e.live || e.generation != h.generation() {
		return zero, errors.StaleHandle(errors.PhaseHandle, a.what, uint64(h))
	}

	value := e.value
	e.value = zero
	e.live = false
	e.generation++
	a.freeList = append(a.freeList, idx)
	return value, nil
}

// Len returns the number of live entries.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	count := 0
	for i := range a.entries {
		if a.entries[i].live {
			count++
		}
	}
	return count
}

// Each iterates over live entries. The callback runs under the read lock;
// it must not call back into the arena.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for i := range a.entries {
		e := &a.entries[i]
		if e.live {
			if !fn(pack(uint32(i), e.generation), e.value) {
				break
			}
		}
	}
}

// Drain removes every live entry and returns the values. Used at teardown so
// the caller can run destructors without the arena lock held.
func (a *Arena[T]) Drain() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	var values []T
	for i := range a.entries {
		e := &a.entries[i]
		if e.live {
			values = append(values, e.value)
			e.value = zero
			e.live = false
			e.generation++
			a.freeList = append(a.freeList, uint32(i))
		}
	}
	return values
}

// Close releases every live value and stops accepting inserts.
// Values implementing Dropper have Drop called outside the lock.
func (a *Arena[T]) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	for _, v := range a.Drain() {
		if d, ok := any(v).(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}
