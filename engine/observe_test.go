package engine

import (
	"sync"
	"testing"
)

func TestObserverOneEventPerCommit(t *testing.T) {
	doc := NewDoc()
	list, _ := doc.GetList("items")

	var events []ChangeSet
	sub := list.Observe(func(txn *Txn, change ChangeSet) {
		events = append(events, change)
	})
	defer sub.Drop()

	txn := doc.BeginWrite()
	list.Push(txn, StringValue("a"))
	list.Push(txn, StringValue("b"))
	list.Push(txn, StringValue("c"))
	if len(events) != 0 {
		t.Fatal("observer fired before commit")
	}
	txn.Commit()

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 coalesced event", len(events))
	}
	seq := events[0].Seq
	if len(seq) != 1 || len(seq[0].Insert) != 3 {
		t.Fatalf("unexpected segments: %+v", seq)
	}
}

func TestObserverSegmentAccounting(t *testing.T) {
	doc := NewDoc()
	list, _ := doc.GetList("items")

	txn := doc.BeginWrite()
	for _, s := range []string{"a", "b", "c", "d"} {
		list.Push(txn, StringValue(s))
	}
	txn.Commit()

	var got []SeqSegment
	sub := list.Observe(func(txn *Txn, change ChangeSet) {
		got = change.Seq
	})
	defer sub.Drop()

	// Replace "b" with "x": old length 4, new length 4.
	txn = doc.BeginWrite()
	list.Remove(txn, 1, 1)
	list.Insert(txn, 1, StringValue("x"))
	txn.Commit()

	// Retains plus deletes must cover the pre state; retains plus inserts the
	// post state.
	pre, post := 0, 0
	for _, seg := range got {
		pre += seg.Retain + seg.Delete
		post += seg.Retain + len(seg.Insert)
	}
	if pre != 4 || post != 4 {
		t.Fatalf("accounting pre=%d post=%d, want 4/4 (segments %+v)", pre, post, got)
	}
}

func TestObserverNoEventWithoutNetChange(t *testing.T) {
	doc := NewDoc()
	m, _ := doc.GetMap("meta")

	txn := doc.BeginWrite()
	m.Set(txn, "k", StringValue("v"))
	txn.Commit()

	fired := 0
	sub := m.Observe(func(txn *Txn, change ChangeSet) { fired++ })
	defer sub.Drop()

	// Set then remove inside one transaction nets out to no change.
	txn = doc.BeginWrite()
	m.Set(txn, "tmp", IntValue(1))
	m.Remove(txn, "tmp")
	txn.Commit()

	if fired != 0 {
		t.Fatalf("observer fired %d times for a net no-op commit", fired)
	}
}

func TestObserverMapEntryChanges(t *testing.T) {
	doc := NewDoc()
	m, _ := doc.GetMap("meta")

	txn := doc.BeginWrite()
	m.Set(txn, "keep", StringValue("old"))
	m.Set(txn, "drop", IntValue(1))
	txn.Commit()

	var got []MapEntryChange
	sub := m.Observe(func(txn *Txn, change ChangeSet) {
		got = change.Entries
	})
	defer sub.Drop()

	txn = doc.BeginWrite()
	m.Set(txn, "keep", StringValue("new"))
	m.Remove(txn, "drop")
	m.Set(txn, "add", BoolValue(true))
	txn.Commit()

	byKey := make(map[string]MapEntryChange, len(got))
	for _, e := range got {
		byKey[e.Key] = e
	}
	if e := byKey["keep"]; e.Action != EntryUpdate || e.Old.Str != "old" || e.New.Str != "new" {
		t.Fatalf("keep change = %+v", e)
	}
	if e := byKey["drop"]; e.Action != EntryDelete || e.Old.Int != 1 {
		t.Fatalf("drop change = %+v", e)
	}
	if e := byKey["add"]; e.Action != EntryInsert || e.New.Bool != true {
		t.Fatalf("add change = %+v", e)
	}
}

func TestObserverTextAttributeSegments(t *testing.T) {
	doc := NewDoc()
	text, _ := doc.GetText("body")

	var got []TextSegment
	sub := text.Observe(func(txn *Txn, change ChangeSet) {
		got = change.Text
	})
	defer sub.Drop()

	txn := doc.BeginWrite()
	text.Insert(txn, 0, "plain", nil)
	text.Insert(txn, 5, "bold", map[string]Value{"bold": BoolValue(true)})
	txn.Commit()

	var inserts []TextSegment
	for _, seg := range got {
		if seg.Insert != "" {
			inserts = append(inserts, seg)
		}
	}
	if len(inserts) != 2 {
		t.Fatalf("got %d insert segments, want 2 (attribute boundary): %+v", len(inserts), got)
	}
	if inserts[0].Insert != "plain" || inserts[0].Attributes != nil {
		t.Fatalf("first insert = %+v", inserts[0])
	}
	if inserts[1].Insert != "bold" || !inserts[1].Attributes["bold"].Bool {
		t.Fatalf("second insert = %+v", inserts[1])
	}
}

func TestObserverXMLChanges(t *testing.T) {
	doc := NewDoc()
	root, _ := doc.GetXMLElement("ui")

	var got ChangeSet
	sub := root.Observe(func(txn *Txn, change ChangeSet) {
		got = change
	})
	defer sub.Drop()

	txn := doc.BeginWrite()
	root.InsertElement(txn, nil, 0, "div")
	root.SetAttr(txn, nil, "lang", StringValue("en"))
	txn.Commit()

	if len(got.Seq) == 0 {
		t.Fatal("expected child sequence changes")
	}
	if len(got.Entries) != 1 || got.Entries[0].Key != "lang" || got.Entries[0].Action != EntryInsert {
		t.Fatalf("attr changes = %+v", got.Entries)
	}
}

func TestSubscriptionDropIsIdempotent(t *testing.T) {
	doc := NewDoc()
	list, _ := doc.GetList("items")

	fired := 0
	sub := list.Observe(func(txn *Txn, change ChangeSet) { fired++ })
	if n := list.observerCount(); n != 1 {
		t.Fatalf("observerCount = %d, want 1", n)
	}
	sub.Drop()
	sub.Drop()
	if n := list.observerCount(); n != 0 {
		t.Fatalf("observerCount after drop = %d, want 0", n)
	}

	txn := doc.BeginWrite()
	list.Push(txn, StringValue("a"))
	txn.Commit()

	if fired != 0 {
		t.Fatal("dropped observer fired")
	}
}

func TestObserverOriginPropagation(t *testing.T) {
	doc := NewDoc()
	list, _ := doc.GetList("items")

	var origin string
	sub := list.Observe(func(txn *Txn, change ChangeSet) {
		origin = change.Origin
	})
	defer sub.Drop()

	txn := doc.BeginWriteWithOrigin("sync")
	list.Push(txn, StringValue("a"))
	txn.Commit()

	if origin != "sync" {
		t.Fatalf("origin = %q, want %q", origin, "sync")
	}
}

func TestConcurrentObserveAndMutate(t *testing.T) {
	doc := NewDoc()
	list, _ := doc.GetList("items")

	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				sub := list.Observe(func(txn *Txn, change ChangeSet) {})
				txn := doc.BeginWrite()
				list.Push(txn, IntValue(int64(i)))
				txn.Commit()
				sub.Drop()
			}
		}()
	}
	wg.Wait()

	read := doc.BeginRead()
	defer read.Commit()
	n, _ := list.Len(read)
	if n != workers*rounds {
		t.Fatalf("final length = %d, want %d", n, workers*rounds)
	}
}
