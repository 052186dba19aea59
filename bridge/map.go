package bridge

import (
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// MapLen returns the number of keys.
func (b *Bridge) MapLen(h, txn handle.Handle) (int, error) {
	r, err := b.maps.Get(h)
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

// MapGet returns the value for key. An absent key is reported through ok, not
// as an error. A nested document comes back as a fresh document handle the
// caller owns.
func (b *Bridge) MapGet(h, txn handle.Handle, key string) (Value, bool, error) {
	r, err := b.maps.Get(h)
	if err != nil {
		return Value{}, false, err
	}
	var out Value
	var present bool
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		v, ok, gerr := r.cont.Get(t, key)
		if gerr != nil || !ok {
			return gerr
		}
		present = true
		out, gerr = b.exportValue(v)
		return gerr
	})
	return out, present, err
}

// MapKeys returns all keys, sorted.
func (b *Bridge) MapKeys(h, txn handle.Handle) ([]string, error) {
	r, err := b.maps.Get(h)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var kerr error
		keys, kerr = r.cont.Keys(t)
		return kerr
	})
	return keys, err
}

// MapSet stores value under key, replacing any previous value.
func (b *Bridge) MapSet(h, txn handle.Handle, key string, value Value) error {
	r, err := b.maps.Get(h)
	if err != nil {
		return err
	}
	ev, err := b.importValue(value)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Set(t, key, ev)
	})
}

// MapRemove deletes key. Removing an absent key is a no-op.
func (b *Bridge) MapRemove(h, txn handle.Handle, key string) error {
	r, err := b.maps.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Remove(t, key)
	})
}

// MapClear deletes every key.
func (b *Bridge) MapClear(h, txn handle.Handle) error {
	r, err := b.maps.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Clear(t)
	})
}

// MapToJSON renders the map as a JSON object.
func (b *Bridge) MapToJSON(h, txn handle.Handle) (string, error) {
	r, err := b.maps.Get(h)
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

// MapObserve registers target for changes to the map under the caller-chosen
// subscription id.
func (b *Bridge) MapObserve(h handle.Handle, id uint64, target any) error {
	r, err := b.maps.Get(h)
	if err != nil {
		return err
	}
	return b.observe(r.owner, r.cont, id, target)
}
