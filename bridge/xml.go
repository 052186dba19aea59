package bridge

import (
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// Nested XML elements are addressed by a child-index path from the handle's
// root element; an empty path addresses the root itself.

// XMLTag returns the root element's tag name.
func (b *Bridge) XMLTag(h handle.Handle) (string, error) {
	r, err := b.xmls.Get(h)
	if err != nil {
		return "", err
	}
	return r.cont.Tag(), nil
}

// XMLChildCount returns the number of children of the element at path.
func (b *Bridge) XMLChildCount(h, txn handle.Handle, path []int) (int, error) {
	r, err := b.xmls.Get(h)
	if err != nil {
		return 0, err
	}
	var n int
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var cerr error
		n, cerr = r.cont.ChildCount(t, path)
		return cerr
	})
	return n, err
}

// XMLChild returns the string form of the child at index under path.
func (b *Bridge) XMLChild(h, txn handle.Handle, path []int, index int) (Value, error) {
	r, err := b.xmls.Get(h)
	if err != nil {
		return Value{}, err
	}
	var out Value
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		v, gerr := r.cont.Child(t, path, index)
		if gerr != nil {
			return gerr
		}
		out, gerr = b.exportValue(v)
		return gerr
	})
	return out, err
}

// XMLChildIndex returns the index of the first child element with the given
// tag under path.
func (b *Bridge) XMLChildIndex(h, txn handle.Handle, path []int, tag string) (int, error) {
	r, err := b.xmls.Get(h)
	if err != nil {
		return 0, err
	}
	var idx int
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var cerr error
		idx, cerr = r.cont.ChildIndex(t, path, tag)
		return cerr
	})
	return idx, err
}

// XMLInsertText inserts a text node at index under path.
func (b *Bridge) XMLInsertText(h, txn handle.Handle, path []int, index int, text string) error {
	r, err := b.xmls.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.InsertText(t, path, index, text)
	})
}

// XMLInsertElement inserts an empty element with the given tag at index under
// path.
func (b *Bridge) XMLInsertElement(h, txn handle.Handle, path []int, index int, tag string) error {
	r, err := b.xmls.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.InsertElement(t, path, index, tag)
	})
}

// XMLRemoveChildren removes n children starting at index under path.
func (b *Bridge) XMLRemoveChildren(h, txn handle.Handle, path []int, index, n int) error {
	r, err := b.xmls.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.RemoveChildren(t, path, index, n)
	})
}

// XMLAttr returns the attribute value for key on the element at path. An
// absent key is reported through ok.
func (b *Bridge) XMLAttr(h, txn handle.Handle, path []int, key string) (Value, bool, error) {
	r, err := b.xmls.Get(h)
	if err != nil {
		return Value{}, false, err
	}
	var out Value
	var present bool
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		v, ok, gerr := r.cont.Attr(t, path, key)
		if gerr != nil || !ok {
			return gerr
		}
		present = true
		out, gerr = b.exportValue(v)
		return gerr
	})
	return out, present, err
}

// XMLSetAttr sets an attribute on the element at path.
func (b *Bridge) XMLSetAttr(h, txn handle.Handle, path []int, key string, value Value) error {
	r, err := b.xmls.Get(h)
	if err != nil {
		return err
	}
	ev, err := b.importValue(value)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.SetAttr(t, path, key, ev)
	})
}

// XMLRemoveAttr removes an attribute from the element at path. Removing an
// absent key is a no-op.
func (b *Bridge) XMLRemoveAttr(h, txn handle.Handle, path []int, key string) error {
	r, err := b.xmls.Get(h)
	if err != nil {
		return err
	}
	return b.withWrite(r.owner, txn, func(t *engine.Txn) error {
		return r.cont.RemoveAttr(t, path, key)
	})
}

// XMLRender returns the element's markup.
func (b *Bridge) XMLRender(h, txn handle.Handle) (string, error) {
	r, err := b.xmls.Get(h)
	if err != nil {
		return "", err
	}
	var out string
	err = b.withRead(r.owner, txn, func(t *engine.Txn) error {
		var rerr error
		out, rerr = r.cont.Render(t)
		return rerr
	})
	return out, err
}

// XMLToJSON renders the markup as a JSON string.
func (b *Bridge) XMLToJSON(h, txn handle.Handle) (string, error) {
	r, err := b.xmls.Get(h)
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

// XMLObserve registers target for changes to the element tree under the
// caller-chosen subscription id.
func (b *Bridge) XMLObserve(h handle.Handle, id uint64, target any) error {
	r, err := b.xmls.Get(h)
	if err != nil {
		return err
	}
	return b.observe(r.owner, r.cont, id, target)
}
