package bridge

import (
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// TextLen returns the text length in runes.
func (b *Bridge) TextLen(h, txn handle.Handle) (int, error) {
	r, err := b.texts.Get(h)
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

// TextString returns the unformatted content.
func (b *Bridge) TextString(h, txn handle.Handle) (string, error) {
	r, err := b.texts.Get(h)
	if err != nil {
		return "", err
	}
	var s string
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var serr error
		s, serr = r.cont.String(t)
		return serr
	})
	return s, err
}

// TextInsert inserts s at the given rune index with optional formatting
// attributes.
func (b *Bridge) TextInsert(h, txn handle.Handle, index int, s string, attrs map[string]Value) error {
	r, err := b.texts.Get(h)
	if err != nil {
		return err
	}
	eattrs, err := b.importAttrs(attrs)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Insert(t, index, s, eattrs)
	})
}

// TextDelete removes n runes starting at index.
func (b *Bridge) TextDelete(h, txn handle.Handle, index, n int) error {
	r, err := b.texts.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.Delete(t, index, n)
	})
}

// TextToJSON renders the content as a JSON string.
func (b *Bridge) TextToJSON(h, txn handle.Handle) (string, error) {
	r, err := b.texts.Get(h)
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

// TextObserve registers target for changes to the text under the
// caller-chosen subscription id.
func (b *Bridge) TextObserve(h handle.Handle, id uint64, target any) error {
	r, err := b.texts.Get(h)
	if err != nil {
		return err
	}
	return b.observe(r.owner, r.cont, id, target)
}
