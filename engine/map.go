package engine

import (
	"encoding/json"
	"sort"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// Map is a keyed container.
type Map struct {
	containerBase
	entries map[string]Value
}

// Len returns the number of keys.
func (m *Map) Len(txn *Txn) (int, error) {
	if err := txn.check(m, false); err != nil {
		return 0, err
	}
	return len(m.entries), nil
}

// Get returns the value for key. An absent key is a valid non-error outcome,
// reported through ok.
func (m *Map) Get(txn *Txn, key string) (Value, bool, error) {
	if err := txn.check(m, false); err != nil {
		return Value{}, false, err
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

// Keys returns all keys, sorted.
func (m *Map) Keys(txn *Txn) ([]string, error) {
	if err := txn.check(m, false); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set stores value under key, replacing any previous value.
func (m *Map) Set(txn *Txn, key string, value Value) error {
	if err := txn.check(m, true); err != nil {
		return err
	}

	stored, err := cloneForStore(value)
	if err != nil {
		return err
	}

	txn.touch(m)
	m.entries[key] = stored
	txn.record(op{
		ContKind: ContainerMap,
		Name:     m.name,
		Kind:     opMapSet,
		Key:      key,
		Values:   []Value{stored},
	})
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (m *Map) Remove(txn *Txn, key string) error {
	if err := txn.check(m, true); err != nil {
		return err
	}
	if _, ok := m.entries[key]; !ok {
		return nil
	}

	txn.touch(m)
	delete(m.entries, key)
	txn.record(op{
		ContKind: ContainerMap,
		Name:     m.name,
		Kind:     opMapRemove,
		Key:      key,
	})
	return nil
}

// Clear deletes every key.
func (m *Map) Clear(txn *Txn) error {
	if err := txn.check(m, true); err != nil {
		return err
	}
	if len(m.entries) == 0 {
		return nil
	}

	txn.touch(m)
	m.entries = make(map[string]Value)
	txn.record(op{
		ContKind: ContainerMap,
		Name:     m.name,
		Kind:     opMapClear,
	})
	return nil
}

// ToJSON renders the map as a JSON object.
func (m *Map) ToJSON(txn *Txn) (string, error) {
	if err := txn.check(m, false); err != nil {
		return "", err
	}
	data, err := json.Marshal(m.jsonValue())
	if err != nil {
		return "", errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "render map")
	}
	return string(data), nil
}

func (m *Map) snapshotState() any {
	snap := make(map[string]Value, len(m.entries))
	for k, v := range m.entries {
		snap[k] = v
	}
	return snap
}

func (m *Map) changesSince(prev any) *ChangeSet {
	old := prev.(map[string]Value)
	changes := diffEntries(old, m.entries)
	if len(changes) == 0 {
		return nil
	}
	return &ChangeSet{Container: m, Entries: changes}
}

func (m *Map) stringForm() string {
	data, _ := json.Marshal(m.jsonValue())
	return string(data)
}

func (m *Map) jsonValue() any {
	out := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		out[k] = v.jsonValue()
	}
	return out
}
