package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// XMLElement is a hierarchical markup container. The root element is the
// named container; nested elements are addressed by a child-index path from
// the root (an empty path addresses the root itself).
type XMLElement struct {
	containerBase
	body xmlBody
}

type xmlBody struct {
	attrs    map[string]Value
	children []xmlNode
	tag      string
}

type xmlNode interface {
	render(b *strings.Builder)
	valueForm() Value
}

type xmlChild struct {
	body xmlBody
}

type xmlText struct {
	text string
}

func (c *xmlChild) render(b *strings.Builder) { c.body.render(b) }
func (c *xmlChild) valueForm() Value {
	var b strings.Builder
	c.body.render(&b)
	return StringValue(b.String())
}

func (t *xmlText) render(b *strings.Builder) { b.WriteString(xmlEscape(t.text)) }
func (t *xmlText) valueForm() Value          { return StringValue(t.text) }

// Tag returns the root element's tag name.
func (x *XMLElement) Tag() string {
	return x.body.tag
}

// resolve walks a child-index path to the addressed element.
func (x *XMLElement) resolve(path []int) (*xmlBody, error) {
	cur := &x.body
	for depth, idx := range path {
		if idx < 0 || idx >= len(cur.children) {
			return nil, errors.OutOfRange(errors.PhaseContainer, idx, len(cur.children))
		}
		child, ok := cur.children[idx].(*xmlChild)
		if !ok {
			return nil, errors.New(errors.PhaseContainer, errors.KindTypeMismatch).
				Path(x.name).
				Detail("path step %d addresses a text node, not an element", depth).
				Build()
		}
		cur = &child.body
	}
	return cur, nil
}

// ChildCount returns the number of children of the element at path.
func (x *XMLElement) ChildCount(txn *Txn, path []int) (int, error) {
	if err := txn.check(x, false); err != nil {
		return 0, err
	}
	body, err := x.resolve(path)
	if err != nil {
		return 0, err
	}
	return len(body.children), nil
}

// Child returns the string form of the child at index under path: text nodes
// yield their text, elements their rendered markup.
func (x *XMLElement) Child(txn *Txn, path []int, index int) (Value, error) {
	if err := txn.check(x, false); err != nil {
		return Value{}, err
	}
	body, err := x.resolve(path)
	if err != nil {
		return Value{}, err
	}
	if index < 0 || index >= len(body.children) {
		return Value{}, errors.OutOfRange(errors.PhaseContainer, index, len(body.children))
	}
	return body.children[index].valueForm(), nil
}

// ChildIndex returns the index of the first child element with the given tag
// under path. This is a direct primitive so callers never scan siblings.
func (x *XMLElement) ChildIndex(txn *Txn, path []int, tag string) (int, error) {
	if err := txn.check(x, false); err != nil {
		return 0, err
	}
	body, err := x.resolve(path)
	if err != nil {
		return 0, err
	}
	for i, child := range body.children {
		if el, ok := child.(*xmlChild); ok && el.body.tag == tag {
			return i, nil
		}
	}
	return 0, errors.NotFound(errors.PhaseContainer, "child element", tag)
}

// InsertText inserts a text node at index under path.
func (x *XMLElement) InsertText(txn *Txn, path []int, index int, text string) error {
	if err := txn.check(x, true); err != nil {
		return err
	}
	body, err := x.resolve(path)
	if err != nil {
		return err
	}
	if index < 0 || index > len(body.children) {
		return errors.OutOfRange(errors.PhaseContainer, index, len(body.children))
	}

	txn.touch(x)
	body.insertChild(index, &xmlText{text: text})
	txn.record(op{
		ContKind: ContainerXML,
		Name:     x.name,
		Kind:     opXMLInsertText,
		Path:     copyPath(path),
		Index:    index,
		Text:     text,
	})
	return nil
}

// InsertElement inserts an empty element with the given tag at index under
// path.
func (x *XMLElement) InsertElement(txn *Txn, path []int, index int, tag string) error {
	if err := txn.check(x, true); err != nil {
		return err
	}
	body, err := x.resolve(path)
	if err != nil {
		return err
	}
	if index < 0 || index > len(body.children) {
		return errors.OutOfRange(errors.PhaseContainer, index, len(body.children))
	}

	txn.touch(x)
	body.insertChild(index, &xmlChild{body: xmlBody{tag: tag, attrs: make(map[string]Value)}})
	txn.record(op{
		ContKind: ContainerXML,
		Name:     x.name,
		Kind:     opXMLInsertElement,
		Path:     copyPath(path),
		Index:    index,
		Key:      tag,
	})
	return nil
}

// RemoveChildren removes n children starting at index under path.
func (x *XMLElement) RemoveChildren(txn *Txn, path []int, index, n int) error {
	if err := txn.check(x, true); err != nil {
		return err
	}
	body, err := x.resolve(path)
	if err != nil {
		return err
	}
	if n < 0 || index < 0 || index+n > len(body.children) {
		return errors.OutOfRange(errors.PhaseContainer, index+n, len(body.children))
	}
	if n == 0 {
		return nil
	}

	txn.touch(x)
	body.children = append(body.children[:index], body.children[index+n:]...)
	txn.record(op{
		ContKind: ContainerXML,
		Name:     x.name,
		Kind:     opXMLRemoveChildren,
		Path:     copyPath(path),
		Index:    index,
		N:        n,
	})
	return nil
}

// Attr returns the attribute value for key on the element at path. An absent
// key is a valid non-error outcome.
func (x *XMLElement) Attr(txn *Txn, path []int, key string) (Value, bool, error) {
	if err := txn.check(x, false); err != nil {
		return Value{}, false, err
	}
	body, err := x.resolve(path)
	if err != nil {
		return Value{}, false, err
	}
	v, ok := body.attrs[key]
	return v, ok, nil
}

// SetAttr sets an attribute on the element at path.
func (x *XMLElement) SetAttr(txn *Txn, path []int, key string, value Value) error {
	if err := txn.check(x, true); err != nil {
		return err
	}
	body, err := x.resolve(path)
	if err != nil {
		return err
	}

	txn.touch(x)
	body.attrs[key] = value
	txn.record(op{
		ContKind: ContainerXML,
		Name:     x.name,
		Kind:     opXMLSetAttr,
		Path:     copyPath(path),
		Key:      key,
		Values:   []Value{value},
	})
	return nil
}

// RemoveAttr removes an attribute from the element at path. Removing an
// absent key is a no-op.
func (x *XMLElement) RemoveAttr(txn *Txn, path []int, key string) error {
	if err := txn.check(x, true); err != nil {
		return err
	}
	body, err := x.resolve(path)
	if err != nil {
		return err
	}
	if _, ok := body.attrs[key]; !ok {
		return nil
	}

	txn.touch(x)
	delete(body.attrs, key)
	txn.record(op{
		ContKind: ContainerXML,
		Name:     x.name,
		Kind:     opXMLRemoveAttr,
		Path:     copyPath(path),
		Key:      key,
	})
	return nil
}

// Render returns the element's markup.
func (x *XMLElement) Render(txn *Txn) (string, error) {
	if err := txn.check(x, false); err != nil {
		return "", err
	}
	var b strings.Builder
	x.body.render(&b)
	return b.String(), nil
}

// ToJSON renders the markup as a JSON string.
func (x *XMLElement) ToJSON(txn *Txn) (string, error) {
	if err := txn.check(x, false); err != nil {
		return "", err
	}
	data, err := json.Marshal(x.jsonValue())
	if err != nil {
		return "", errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "render xml")
	}
	return string(data), nil
}

func (b *xmlBody) insertChild(index int, node xmlNode) {
	b.children = append(b.children[:index], append([]xmlNode{node}, b.children[index:]...)...)
}

func (b *xmlBody) render(out *strings.Builder) {
	out.WriteByte('<')
	out.WriteString(b.tag)

	keys := make([]string, 0, len(b.attrs))
	for k := range b.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.WriteByte(' ')
		out.WriteString(k)
		out.WriteString(`="`)
		out.WriteString(xmlEscape(fmt.Sprint(b.attrs[k].ToGo())))
		out.WriteByte('"')
	}

	if len(b.children) == 0 {
		out.WriteString("/>")
		return
	}
	out.WriteByte('>')
	for _, c := range b.children {
		c.render(out)
	}
	out.WriteString("</")
	out.WriteString(b.tag)
	out.WriteByte('>')
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func copyPath(path []int) []int {
	if len(path) == 0 {
		return nil
	}
	out := make([]int, len(path))
	copy(out, path)
	return out
}

type xmlSnapshot struct {
	attrs    map[string]Value
	children []Value
}

func (x *XMLElement) snapshotState() any {
	children := make([]Value, len(x.body.children))
	for i, c := range x.body.children {
		children[i] = c.valueForm()
	}
	return xmlSnapshot{attrs: copyAttrs(x.body.attrs), children: children}
}

func (x *XMLElement) changesSince(prev any) *ChangeSet {
	old := prev.(xmlSnapshot)

	now := x.snapshotState().(xmlSnapshot)
	seq := diffSeq(old.children, now.children)
	entries := diffEntries(old.attrs, now.attrs)
	if len(seq) == 0 && len(entries) == 0 {
		return nil
	}
	return &ChangeSet{Container: x, Seq: seq, Entries: entries}
}

func (x *XMLElement) stringForm() string {
	var b strings.Builder
	x.body.render(&b)
	return b.String()
}

func (x *XMLElement) jsonValue() any {
	return x.stringForm()
}
