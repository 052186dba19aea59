package bridge

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/edpaget/ycrdt-bridge/document"
	"github.com/edpaget/ycrdt-bridge/engine"
)

// Event is the JSON payload delivered to a callback target for one committed
// transaction's changes to one observed container. Which delta field is
// populated depends on the container kind; XML events carry both child (Seq)
// and attribute (Entries) deltas.
type Event struct {
	Container    string       `json:"container"`
	Kind         string       `json:"kind"`
	Subscription uint64       `json:"subscription"`
	Origin       string       `json:"origin,omitempty"`
	Seq          []SeqDelta   `json:"seq,omitempty"`
	Text         []TextDelta  `json:"text,omitempty"`
	Entries      []EntryDelta `json:"entries,omitempty"`
}

// SeqDelta is one segment of a sequence delta.
type SeqDelta struct {
	Insert []any `json:"insert,omitempty"`
	Retain int   `json:"retain,omitempty"`
	Delete int   `json:"delete,omitempty"`
}

// TextDelta is one segment of a text delta.
type TextDelta struct {
	Attributes map[string]any `json:"attributes,omitempty"`
	Insert     string         `json:"insert,omitempty"`
	Retain     int            `json:"retain,omitempty"`
	Delete     int            `json:"delete,omitempty"`
}

// EntryDelta is one changed key of a keyed container.
type EntryDelta struct {
	Old    any    `json:"old,omitempty"`
	New    any    `json:"new,omitempty"`
	Key    string `json:"key"`
	Action string `json:"action"`
}

// newEvent translates an engine change set into the wire event shape.
func newEvent(id uint64, change engine.ChangeSet) Event {
	ev := Event{
		Container:    change.Container.Name(),
		Kind:         change.Container.ContainerKind().String(),
		Subscription: id,
		Origin:       change.Origin,
	}
	for _, seg := range change.Seq {
		d := SeqDelta{Retain: seg.Retain, Delete: seg.Delete}
		for _, v := range seg.Insert {
			d.Insert = append(d.Insert, eventValue(v))
		}
		ev.Seq = append(ev.Seq, d)
	}
	for _, seg := range change.Text {
		ev.Text = append(ev.Text, TextDelta{
			Retain:     seg.Retain,
			Delete:     seg.Delete,
			Insert:     seg.Insert,
			Attributes: eventAttrs(seg.Attributes),
		})
	}
	for _, e := range change.Entries {
		d := EntryDelta{Key: e.Key, Action: e.Action.String()}
		if e.Old != nil {
			d.Old = eventValue(*e.Old)
		}
		if e.New != nil {
			d.New = eventValue(*e.New)
		}
		ev.Entries = append(ev.Entries, d)
	}
	return ev
}

// eventValue renders an engine value for the event payload. Nested documents
// are rendered as their JSON object snapshot rather than leaking a pointer.
func eventValue(v engine.Value) any {
	if d, ok := v.AsDoc(); ok {
		txn := d.BeginRead()
		out, err := d.ToJSON(txn)
		txn.Commit()
		if err != nil {
			return nil
		}
		return json.RawMessage(out)
	}
	return v.ToGo()
}

func eventAttrs(attrs map[string]engine.Value) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = eventValue(v)
	}
	return out
}

// observerFunc builds the engine callback for one subscription. It runs on
// the committing goroutine with the write gate held: the callback ref is
// looked up per fire so an unregistered subscription goes quiet immediately,
// and every dispatch failure is logged and dropped so a broken callback can
// never fail the commit.
func (b *Bridge) observerFunc(owner *document.Owner, cont engine.Container, id uint64) engine.ObserverFunc {
	return func(txn *engine.Txn, change engine.ChangeSet) {
		// A panicking callback must not take the committing mutation down
		// with it; it degrades to a dropped event like any other failure.
		defer func() {
			if r := recover(); r != nil {
				Logger().Warn("observer callback panicked",
					zap.String("container", cont.Name()),
					zap.Uint64("subscription", id),
					zap.Any("panic", r))
			}
		}()

		ref, ok := owner.LookupRef(id)
		if !ok {
			return
		}

		payload, err := json.Marshal(newEvent(id, change))
		if err != nil {
			Logger().Warn("encode observer event failed",
				zap.String("container", cont.Name()),
				zap.Uint64("subscription", id),
				zap.Error(err))
			return
		}

		att, err := b.runtime.Attach()
		if err != nil {
			Logger().Warn("attach to host runtime failed",
				zap.String("container", cont.Name()),
				zap.Uint64("subscription", id),
				zap.Error(err))
			return
		}
		defer func() {
			if derr := att.Detach(); derr != nil {
				Logger().Warn("detach from host runtime failed", zap.Error(derr))
			}
		}()

		if err := att.Invoke(ref, b.method, payload); err != nil {
			Logger().Warn("observer callback failed",
				zap.String("container", cont.Name()),
				zap.Uint64("subscription", id),
				zap.Error(err))
		}
	}
}
