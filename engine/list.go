package engine

import (
	"encoding/json"
	"strings"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// List is an ordered sequence container.
type List struct {
	containerBase
	items []Value
}

// Len returns the number of elements.
func (l *List) Len(txn *Txn) (int, error) {
	if err := txn.check(l, false); err != nil {
		return 0, err
	}
	return len(l.items), nil
}

// Get returns the element at index. Out-of-range is reported as a typed
// failure, distinct from "engine returned no result".
func (l *List) Get(txn *Txn, index int) (Value, error) {
	if err := txn.check(l, false); err != nil {
		return Value{}, err
	}
	if index < 0 || index >= len(l.items) {
		return Value{}, errors.OutOfRange(errors.PhaseContainer, index, len(l.items))
	}
	return l.items[index], nil
}

// Insert places values at index, shifting later elements right.
func (l *List) Insert(txn *Txn, index int, values ...Value) error {
	if err := txn.check(l, true); err != nil {
		return err
	}
	if index < 0 || index > len(l.items) {
		return errors.OutOfRange(errors.PhaseContainer, index, len(l.items))
	}

	stored := make([]Value, len(values))
	for i, v := range values {
		sv, err := cloneForStore(v)
		if err != nil {
			return err
		}
		stored[i] = sv
	}

	txn.touch(l)
	l.items = append(l.items[:index], append(stored, l.items[index:]...)...)
	txn.record(op{
		ContKind: ContainerList,
		Name:     l.name,
		Kind:     opListInsert,
		Index:    index,
		Values:   stored,
	})
	return nil
}

// Push appends values at the end.
func (l *List) Push(txn *Txn, values ...Value) error {
	if err := txn.check(l, true); err != nil {
		return err
	}
	return l.Insert(txn, len(l.items), values...)
}

// Remove deletes n elements starting at index.
func (l *List) Remove(txn *Txn, index, n int) error {
	if err := txn.check(l, true); err != nil {
		return err
	}
	if n < 0 || index < 0 || index+n > len(l.items) {
		return errors.OutOfRange(errors.PhaseContainer, index+n, len(l.items))
	}
	if n == 0 {
		return nil
	}

	txn.touch(l)
	l.items = append(l.items[:index], l.items[index+n:]...)
	txn.record(op{
		ContKind: ContainerList,
		Name:     l.name,
		Kind:     opListRemove,
		Index:    index,
		N:        n,
	})
	return nil
}

// ToJSON renders the list as a JSON array.
func (l *List) ToJSON(txn *Txn) (string, error) {
	if err := txn.check(l, false); err != nil {
		return "", err
	}
	data, err := json.Marshal(l.jsonValue())
	if err != nil {
		return "", errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "render list")
	}
	return string(data), nil
}

func (l *List) snapshotState() any {
	snap := make([]Value, len(l.items))
	copy(snap, l.items)
	return snap
}

func (l *List) changesSince(prev any) *ChangeSet {
	old := prev.([]Value)
	segs := diffSeq(old, l.items)
	if len(segs) == 0 {
		return nil
	}
	return &ChangeSet{Container: l, Seq: segs}
}

func (l *List) stringForm() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l.items {
		if i > 0 {
			b.WriteString(", ")
		}
		switch v.Kind {
		case KindDoc:
			b.WriteString("<doc>")
		default:
			data, _ := json.Marshal(v.jsonValue())
			b.Write(data)
		}
	}
	b.WriteByte(']')
	return b.String()
}

func (l *List) jsonValue() any {
	out := make([]any, len(l.items))
	for i, v := range l.items {
		out[i] = v.jsonValue()
	}
	return out
}
