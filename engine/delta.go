package engine

// Change-record shapes delivered to observers. One ChangeSet is produced per
// touched container per committed write transaction; its segments describe
// the transition from the container's state at transaction begin to its state
// at commit.

// SeqSegment is one segment of a sequence delta. Exactly one of Retain,
// Insert, Delete is set.
type SeqSegment struct {
	Insert []Value
	Retain int
	Delete int
}

// TextSegment is one segment of a text delta. Insert carries the inserted
// text and its formatting attributes.
type TextSegment struct {
	Attributes map[string]Value
	Insert     string
	Retain     int
	Delete     int
}

// EntryAction says what happened to a map key.
type EntryAction uint8

const (
	EntryInsert EntryAction = iota
	EntryUpdate
	EntryDelete
)

func (a EntryAction) String() string {
	switch a {
	case EntryInsert:
		return "insert"
	case EntryUpdate:
		return "update"
	case EntryDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MapEntryChange describes one changed key in a keyed container.
type MapEntryChange struct {
	Old    *Value
	New    *Value
	Key    string
	Action EntryAction
}

// ChangeSet is the coalesced description of what changed in one container
// during one committed transaction. Which fields are populated depends on the
// container kind:
//
//	list: Seq
//	text: Text
//	map:  Entries
//	xml:  Seq (children) and Entries (attributes)
type ChangeSet struct {
	Container Container
	Origin    string
	Seq       []SeqSegment
	Text      []TextSegment
	Entries   []MapEntryChange
}

// diffSeq computes a prefix/suffix delta between two value sequences.
// Accounting invariants: retains+deletes cover len(old), retains+inserts
// cover len(new).
func diffSeq(old, new []Value) []SeqSegment {
	prefix := 0
	for prefix < len(old) && prefix < len(new) && old[prefix].Equal(new[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(new)-prefix &&
		old[len(old)-1-suffix].Equal(new[len(new)-1-suffix]) {
		suffix++
	}

	var segs []SeqSegment
	if prefix > 0 {
		segs = append(segs, SeqSegment{Retain: prefix})
	}
	if del := len(old) - prefix - suffix; del > 0 {
		segs = append(segs, SeqSegment{Delete: del})
	}
	if ins := new[prefix : len(new)-suffix]; len(ins) > 0 {
		inserted := make([]Value, len(ins))
		copy(inserted, ins)
		segs = append(segs, SeqSegment{Insert: inserted})
	}
	if suffix > 0 {
		segs = append(segs, SeqSegment{Retain: suffix})
	}
	return segs
}

// diffEntries computes per-key changes between two snapshots of a keyed
// container. Order is unspecified, matching the unordered map event shape.
func diffEntries(old, new map[string]Value) []MapEntryChange {
	var changes []MapEntryChange
	for k, ov := range old {
		nv, ok := new[k]
		if !ok {
			o := ov
			changes = append(changes, MapEntryChange{Key: k, Action: EntryDelete, Old: &o})
			continue
		}
		if !ov.Equal(nv) {
			o, n := ov, nv
			changes = append(changes, MapEntryChange{Key: k, Action: EntryUpdate, Old: &o, New: &n})
		}
	}
	for k, nv := range new {
		if _, ok := old[k]; !ok {
			n := nv
			changes = append(changes, MapEntryChange{Key: k, Action: EntryInsert, New: &n})
		}
	}
	return changes
}

// styledRune pairs one rune of text content with its formatting attributes.
type styledRune struct {
	attrs map[string]Value
	r     rune
}

func styledEqual(a, b styledRune) bool {
	return a.r == b.r && attrsEqual(a.attrs, b.attrs)
}

// diffText computes a prefix/suffix delta between two styled rune sequences,
// splitting inserts on attribute boundaries.
func diffText(old, new []styledRune) []TextSegment {
	prefix := 0
	for prefix < len(old) && prefix < len(new) && styledEqual(old[prefix], new[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(new)-prefix &&
		styledEqual(old[len(old)-1-suffix], new[len(new)-1-suffix]) {
		suffix++
	}

	var segs []TextSegment
	if prefix > 0 {
		segs = append(segs, TextSegment{Retain: prefix})
	}
	if del := len(old) - prefix - suffix; del > 0 {
		segs = append(segs, TextSegment{Delete: del})
	}
	mid := new[prefix : len(new)-suffix]
	for i := 0; i < len(mid); {
		j := i + 1
		for j < len(mid) && attrsEqual(mid[i].attrs, mid[j].attrs) {
			j++
		}
		runes := make([]rune, 0, j-i)
		for _, sr := range mid[i:j] {
			runes = append(runes, sr.r)
		}
		segs = append(segs, TextSegment{Insert: string(runes), Attributes: copyAttrs(mid[i].attrs)})
		i = j
	}
	if suffix > 0 {
		segs = append(segs, TextSegment{Retain: suffix})
	}
	return segs
}
