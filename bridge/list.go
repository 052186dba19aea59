package bridge

import (
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// ListLen returns the number of elements.
func (b *Bridge) ListLen(h, txn handle.Handle) (int, error) {
	r, err := b.lists.Get(h)
	if err != nil {
		return 0, err
	}
	var n int
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var lerr error
		n, lerr = r.cont.Len(t)
		return lerr
	})
	return n, err
}

// ListGet returns the element at index. A nested document comes back as a
// fresh document handle the caller owns.
func (b *Bridge) ListGet(h, txn handle.Handle, index int) (Value, error) {
	r, err := b.lists.Get(h)
	if err != nil {
		return Value{}, err
	}
	var out Value
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		v, gerr := r.cont.Get(t, index)
		if gerr != nil {
			return gerr
		}
		out, gerr = b.exportValue(v)
		return gerr
	})
	return out, err
}

// ListInsert places values at index, shifting later elements right.
func (b *Bridge) ListInsert(h, txn handle.Handle, index int, values ...Value) error {
	r, err := b.lists.Get(h)
	if err != nil {
		return err
	}
	evs, err := b.importValues(values)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Insert(t, index, evs...)
	})
}

// ListPush appends values at the end.
func (b *Bridge) ListPush(h, txn handle.Handle, values ...Value) error {
	r, err := b.lists.Get(h)
	if err != nil {
		return err
	}
	evs, err := b.importValues(values)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Push(t, evs...)
	})
}

// ListRemove deletes n elements starting at index.
func (b *Bridge) ListRemove(h, txn handle.Handle, index, n int) error {
	r, err := b.lists.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Remove(t, index, n)
	})
}

// ListToJSON renders the list as a JSON array.
func (b *Bridge) ListToJSON(h, txn handle.Handle) (string, error) {
	r, err := b.lists.Get(h)
	if err != nil {
		return "", err
	}
	var out string
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var jerr error
		out, jerr = r.cont.ToJSON(t)
		return jerr
	})
	return out, err
}

// ListObserve registers target for changes to the list under the
// caller-chosen subscription id.
func (b *Bridge) ListObserve(h handle.Handle, id uint64, target any) error {
	r, err := b.lists.Get(h)
	if err != nil {
		return err
	}
	return b.observe(r.owner, r.cont, id, target)
}
