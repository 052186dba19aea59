package engine

import (
	"encoding/json"
	"strings"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// Text is a text container with run-level formatting attributes.
// All positions and lengths are in runes.
type Text struct {
	containerBase
	runs []textRun
}

type textRun struct {
	attrs map[string]Value
	text  string
}

// Len returns the text length in runes.
func (t *Text) Len(txn *Txn) (int, error) {
	if err := txn.check(t, false); err != nil {
		return 0, err
	}
	return t.runeLen(), nil
}

// String returns the unformatted content.
func (t *Text) String(txn *Txn) (string, error) {
	if err := txn.check(t, false); err != nil {
		return "", err
	}
	return t.content(), nil
}

// Insert places s at the given rune index with the given formatting
// attributes (nil for unformatted text).
func (t *Text) Insert(txn *Txn, index int, s string, attrs map[string]Value) error {
	if err := txn.check(t, true); err != nil {
		return err
	}
	length := t.runeLen()
	if index < 0 || index > length {
		return errors.OutOfRange(errors.PhaseContainer, index, length)
	}
	if s == "" {
		return nil
	}

	txn.touch(t)
	t.insertAt(index, s, copyAttrs(attrs))
	txn.record(op{
		ContKind: ContainerText,
		Name:     t.name,
		Kind:     opTextInsert,
		Index:    index,
		Text:     s,
		Attrs:    copyAttrs(attrs),
	})
	return nil
}

// Delete removes n runes starting at index.
func (t *Text) Delete(txn *Txn, index, n int) error {
	if err := txn.check(t, true); err != nil {
		return err
	}
	length := t.runeLen()
	if n < 0 || index < 0 || index+n > length {
		return errors.OutOfRange(errors.PhaseContainer, index+n, length)
	}
	if n == 0 {
		return nil
	}

	txn.touch(t)
	t.deleteAt(index, n)
	txn.record(op{
		ContKind: ContainerText,
		Name:     t.name,
		Kind:     opTextDelete,
		Index:    index,
		N:        n,
	})
	return nil
}

// ToJSON renders the content as a JSON string.
func (t *Text) ToJSON(txn *Txn) (string, error) {
	if err := txn.check(t, false); err != nil {
		return "", err
	}
	data, err := json.Marshal(t.content())
	if err != nil {
		return "", errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "render text")
	}
	return string(data), nil
}

func (t *Text) runeLen() int {
	n := 0
	for _, r := range t.runs {
		n += len([]rune(r.text))
	}
	return n
}

func (t *Text) content() string {
	var b strings.Builder
	for _, r := range t.runs {
		b.WriteString(r.text)
	}
	return b.String()
}

// insertAt splits the run at index if needed and inserts a new run, merging
// with a neighbor when the attributes match.
func (t *Text) insertAt(index int, s string, attrs map[string]Value) {
	runIdx, offset := t.locate(index)

	newRun := textRun{text: s, attrs: attrs}

	if runIdx < len(t.runs) && offset > 0 {
		// Split mid-run.
		run := t.runs[runIdx]
		runes := []rune(run.text)
		before := textRun{text: string(runes[:offset]), attrs: run.attrs}
		after := textRun{text: string(runes[offset:]), attrs: run.attrs}
		tail := make([]textRun, 0, len(t.runs)-runIdx+1)
		tail = append(tail, before, newRun, after)
		tail = append(tail, t.runs[runIdx+1:]...)
		t.runs = append(t.runs[:runIdx], tail...)
	} else {
		t.runs = append(t.runs[:runIdx], append([]textRun{newRun}, t.runs[runIdx:]...)...)
	}
	t.normalize()
}

// deleteAt removes n runes starting at index.
func (t *Text) deleteAt(index, n int) {
	flat := t.flatten()
	remaining := append(flat[:index], flat[index+n:]...)
	t.runs = runsFromStyled(remaining)
}

// locate maps a rune index to (run index, rune offset within run). An index
// at the very end maps to (len(runs), 0).
func (t *Text) locate(index int) (int, int) {
	pos := 0
	for i, r := range t.runs {
		rl := len([]rune(r.text))
		if index < pos+rl {
			return i, index - pos
		}
		pos += rl
	}
	return len(t.runs), 0
}

// normalize merges adjacent runs with equal attributes and drops empties.
func (t *Text) normalize() {
	out := t.runs[:0]
	for _, r := range t.runs {
		if r.text == "" {
			continue
		}
		if n := len(out); n > 0 && attrsEqual(out[n-1].attrs, r.attrs) {
			out[n-1].text += r.text
			continue
		}
		out = append(out, r)
	}
	t.runs = out
}

func (t *Text) flatten() []styledRune {
	var flat []styledRune
	for _, run := range t.runs {
		for _, r := range run.text {
			flat = append(flat, styledRune{r: r, attrs: run.attrs})
		}
	}
	return flat
}

func runsFromStyled(flat []styledRune) []textRun {
	var runs []textRun
	for i := 0; i < len(flat); {
		j := i + 1
		for j < len(flat) && attrsEqual(flat[i].attrs, flat[j].attrs) {
			j++
		}
		runes := make([]rune, 0, j-i)
		for _, sr := range flat[i:j] {
			runes = append(runes, sr.r)
		}
		runs = append(runs, textRun{text: string(runes), attrs: flat[i].attrs})
		i = j
	}
	return runs
}

func (t *Text) snapshotState() any {
	return t.flatten()
}

func (t *Text) changesSince(prev any) *ChangeSet {
	old := prev.([]styledRune)
	segs := diffText(old, t.flatten())
	if len(segs) == 0 {
		return nil
	}
	return &ChangeSet{Container: t, Text: segs}
}

func (t *Text) stringForm() string {
	return t.content()
}

func (t *Text) jsonValue() any {
	return t.content()
}
