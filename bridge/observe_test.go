package bridge

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/edpaget/ycrdt-bridge/errors"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// collector is a callback target that decodes every delivered event.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) OnEvent(payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestObserveDeliversOneEventPerCommit(t *testing.T) {
	b, _ := newTestBridge(t)
	doc, _ := b.DocNew()
	list, _ := b.DocGetList(doc, "items")

	col := &collector{}
	if err := b.ListObserve(list, 1, col); err != nil {
		t.Fatalf("ListObserve failed: %v", err)
	}

	txn, _ := b.TxnBeginWrite(doc)
	b.ListPush(list, txn, StringValue("a"))
	b.ListPush(list, txn, StringValue("b"))
	b.ListPush(list, txn, StringValue("c"))
	b.TxnCommit(txn)

	events := col.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 coalesced event", len(events))
	}
	ev := events[0]
	if ev.Container != "items" || ev.Kind != "list" || ev.Subscription != 1 {
		t.Fatalf("event header = %+v", ev)
	}
	if ev.Origin != "" {
		t.Fatalf("origin = %q, want empty", ev.Origin)
	}
	if len(ev.Seq) != 1 || len(ev.Seq[0].Insert) != 3 {
		t.Fatalf("event segments = %+v", ev.Seq)
	}
}

func TestObserveImplicitTransactionFiresPerCall(t *testing.T) {
	b, _ := newTestBridge(t)
	doc, _ := b.DocNew()
	m, _ := b.DocGetMap(doc, "meta")

	col := &collector{}
	b.MapObserve(m, 1, col)

	b.MapSet(m, handle.Zero, "a", IntValue(1))
	b.MapSet(m, handle.Zero, "b", IntValue(2))

	events := col.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want one per implicit commit", len(events))
	}
	if events[0].Entries[0].Key != "a" || events[0].Entries[0].Action != "insert" {
		t.Fatalf("first event entries = %+v", events[0].Entries)
	}
}

func TestObserveOriginOnEvents(t *testing.T) {
	b, _ := newTestBridge(t)
	doc, _ := b.DocNew()
	text, _ := b.DocGetText(doc, "body")

	col := &collector{}
	b.TextObserve(text, 1, col)

	txn, _ := b.TxnBeginWriteWithOrigin(doc, "sync")
	b.TextInsert(text, txn, 0, "x", nil)
	b.TxnCommit(txn)

	events := col.all()
	if len(events) != 1 || events[0].Origin != "sync" {
		t.Fatalf("events = %+v, want origin sync", events)
	}
}

func TestObserveDuplicateIDFailsWithoutLeak(t *testing.T) {
	b, rt := newTestBridge(t)
	doc, _ := b.DocNew()
	list, _ := b.DocGetList(doc, "items")

	col := &collector{}
	if err := b.ListObserve(list, 9, col); err != nil {
		t.Fatalf("first ListObserve failed: %v", err)
	}
	base := rt.LiveRefs()

	err := b.ListObserve(list, 9, col)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseObserve, Kind: errors.KindDuplicate}) {
		t.Fatalf("duplicate observe = %v, want duplicate", err)
	}
	if rt.LiveRefs() != base {
		t.Fatalf("rejected registration leaked a ref: %d != %d", rt.LiveRefs(), base)
	}

	// The surviving registration still works.
	b.ListPush(list, handle.Zero, StringValue("a"))
	if len(col.all()) != 1 {
		t.Fatalf("surviving subscription fired %d times, want 1", len(col.all()))
	}
}

func TestUnobserveStopsDeliveryAndReleasesRef(t *testing.T) {
	b, rt := newTestBridge(t)
	doc, _ := b.DocNew()
	list, _ := b.DocGetList(doc, "items")

	col := &collector{}
	b.ListObserve(list, 3, col)
	if rt.LiveRefs() != 1 {
		t.Fatalf("LiveRefs = %d, want 1", rt.LiveRefs())
	}

	if err := b.Unobserve(doc, 3); err != nil {
		t.Fatalf("Unobserve failed: %v", err)
	}
	if rt.LiveRefs() != 0 {
		t.Fatalf("LiveRefs after unobserve = %d, want 0", rt.LiveRefs())
	}

	// Unknown id is a no-op, not an error.
	if err := b.Unobserve(doc, 3); err != nil {
		t.Fatalf("repeat Unobserve = %v, want nil", err)
	}
	if err := b.Unobserve(doc, 12345); err != nil {
		t.Fatalf("unknown id Unobserve = %v, want nil", err)
	}

	b.ListPush(list, handle.Zero, StringValue("a"))
	if len(col.all()) != 0 {
		t.Fatal("unobserved callback still fired")
	}
}

func TestDocDestroyTearsDownSubscriptions(t *testing.T) {
	b, rt := newTestBridge(t)
	doc, _ := b.DocNew()

	const k = 5
	col := &collector{}
	for i := 0; i < k; i++ {
		list, _ := b.DocGetList(doc, fmt.Sprintf("l%d", i))
		if err := b.ListObserve(list, uint64(i+1), col); err != nil {
			t.Fatalf("observe %d failed: %v", i, err)
		}
	}
	if rt.LiveRefs() != k {
		t.Fatalf("LiveRefs = %d, want %d", rt.LiveRefs(), k)
	}

	if err := b.DocDestroy(doc); err != nil {
		t.Fatalf("DocDestroy failed: %v", err)
	}
	if rt.LiveRefs() != 0 {
		t.Fatalf("LiveRefs after destroy = %d, want 0", rt.LiveRefs())
	}
}

// failingTarget always errors; dispatch must log and drop, never fail the
// commit.
type failingTarget struct{}

func (failingTarget) OnEvent([]byte) error {
	return fmt.Errorf("callback exploded")
}

func TestCallbackFailureDoesNotFailCommit(t *testing.T) {
	b, _ := newTestBridge(t)
	doc, _ := b.DocNew()
	list, _ := b.DocGetList(doc, "items")

	b.ListObserve(list, 1, failingTarget{})
	col := &collector{}
	b.ListObserve(list, 2, col)

	if err := b.ListPush(list, handle.Zero, StringValue("a")); err != nil {
		t.Fatalf("commit failed because of callback: %v", err)
	}
	if len(col.all()) != 1 {
		t.Fatal("healthy subscription starved by failing one")
	}
	n, _ := b.ListLen(list, handle.Zero)
	if n != 1 {
		t.Fatalf("mutation lost: len = %d", n)
	}
}

func TestObserveTextEventPayload(t *testing.T) {
	b, _ := newTestBridge(t)
	doc, _ := b.DocNew()
	text, _ := b.DocGetText(doc, "body")

	col := &collector{}
	b.TextObserve(text, 1, col)

	txn, _ := b.TxnBeginWrite(doc)
	b.TextInsert(text, txn, 0, "plain", nil)
	b.TextInsert(text, txn, 5, "bold", map[string]Value{"bold": BoolValue(true)})
	b.TxnCommit(txn)

	events := col.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	segs := events[0].Text
	if len(segs) != 2 {
		t.Fatalf("text segments = %+v, want 2 attribute-split inserts", segs)
	}
	if segs[0].Insert != "plain" || segs[0].Attributes != nil {
		t.Fatalf("first segment = %+v", segs[0])
	}
	if segs[1].Insert != "bold" || segs[1].Attributes["bold"] != true {
		t.Fatalf("second segment = %+v", segs[1])
	}
}

func TestApplyUpdateDispatchesEvents(t *testing.T) {
	b, _ := newTestBridge(t)

	src, _ := b.DocNewWithClientID(1)
	srcList, _ := b.DocGetList(src, "items")
	b.ListPush(srcList, handle.Zero, StringValue("a"))
	update, _ := b.EncodeStateAsUpdate(src)

	dst, _ := b.DocNewWithClientID(2)
	dstList, _ := b.DocGetList(dst, "items")
	col := &collector{}
	b.ListObserve(dstList, 1, col)

	if err := b.ApplyUpdate(dst, update); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
	events := col.all()
	if len(events) != 1 || events[0].Kind != "list" {
		t.Fatalf("events = %+v, want one list event", events)
	}
}

func TestConcurrentObserveUnobserveMutate(t *testing.T) {
	b, rt := newTestBridge(t)
	doc, _ := b.DocNew()
	list, _ := b.DocGetList(doc, "items")

	const workers = 8
	const rounds = 40

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				id := uint64(w*rounds + i + 1)
				if err := b.ListObserve(list, id, func([]byte) {}); err != nil {
					t.Errorf("observe %d failed: %v", id, err)
					return
				}
				if err := b.ListPush(list, handle.Zero, IntValue(int64(i))); err != nil {
					t.Errorf("push failed: %v", err)
					return
				}
				if err := b.Unobserve(doc, id); err != nil {
					t.Errorf("unobserve %d failed: %v", id, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if rt.LiveRefs() != 0 {
		t.Fatalf("LiveRefs after stress = %d, want 0", rt.LiveRefs())
	}
	n, err := b.ListLen(list, handle.Zero)
	if err != nil || n != workers*rounds {
		t.Fatalf("final length = (%d, %v), want %d", n, err, workers*rounds)
	}
}

// panickingTarget blows up on every delivery; dispatch must contain it.
type panickingTarget struct{}

func (panickingTarget) OnEvent([]byte) error {
	panic("callback exploded")
}

func TestCallbackPanicDoesNotFailCommit(t *testing.T) {
	b, _ := newTestBridge(t)
	doc, _ := b.DocNew()
	list, _ := b.DocGetList(doc, "items")

	b.ListObserve(list, 1, panickingTarget{})
	col := &collector{}
	b.ListObserve(list, 2, col)

	if err := b.ListPush(list, handle.Zero, StringValue("a")); err != nil {
		t.Fatalf("commit failed because of panicking callback: %v", err)
	}
	if len(col.all()) != 1 {
		t.Fatal("healthy subscription starved by panicking one")
	}
	n, _ := b.ListLen(list, handle.Zero)
	if n != 1 {
		t.Fatalf("mutation lost: len = %d", n)
	}
}

func TestDocDestroyDuringConcurrentMutation(t *testing.T) {
	b, rt := newTestBridge(t)

	const rounds = 20
	const mutators = 4
	for round := 0; round < rounds; round++ {
		doc, _ := b.DocNew()
		list, err := b.DocGetList(doc, "items")
		if err != nil {
			t.Fatalf("round %d: DocGetList failed: %v", round, err)
		}

		col := &collector{}
		for i := 0; i < 3; i++ {
			if err := b.ListObserve(list, uint64(i+1), col); err != nil {
				t.Fatalf("round %d: observe failed: %v", round, err)
			}
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < mutators; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; ; i++ {
					// Pushes racing the destroy either land or fail with a
					// typed error; either way the loop ends cleanly.
					if err := b.ListPush(list, handle.Zero, IntValue(int64(i))); err != nil {
						return
					}
				}
			}()
		}
		close(start)

		if err := b.DocDestroy(doc); err != nil {
			t.Fatalf("round %d: DocDestroy failed: %v", round, err)
		}
		wg.Wait()

		if rt.LiveRefs() != 0 {
			t.Fatalf("round %d: LiveRefs after destroy = %d, want 0", round, rt.LiveRefs())
		}

		delivered := len(col.all())
		if err := b.ListPush(list, handle.Zero, IntValue(0)); err == nil {
			t.Fatalf("round %d: mutation through destroyed document succeeded", round)
		}
		if got := len(col.all()); got != delivered {
			t.Fatalf("round %d: dispatch after teardown: %d then %d", round, delivered, got)
		}
	}
}
