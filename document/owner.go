package document

import (
	"sync"

	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/errors"
	"github.com/edpaget/ycrdt-bridge/host"
)

// Owner binds one engine document to the subscriptions and pinned callback
// refs registered through it. Subscription ids are chosen by the embedder and
// must be unique per owner.
type Owner struct {
	doc    *engine.Doc
	subs   map[uint64]subEntry
	mu     sync.RWMutex
	alive  bool
	shared bool
}

type subEntry struct {
	token *engine.Subscription
	ref   host.Ref
}

// New creates an owner around a fresh document.
func New(doc *engine.Doc) *Owner {
	return &Owner{
		doc:   doc,
		subs:  make(map[uint64]subEntry),
		alive: true,
	}
}

// WrapShared creates an owner for a document whose state is owned elsewhere,
// such as a nested document read out of a container slot. Destroying a shared
// owner tears down its subscriptions and refs but leaves the document alone.
func WrapShared(doc *engine.Doc) *Owner {
	o := New(doc)
	o.shared = true
	return o
}

// Doc returns the owned document, or an error after Destroy.
func (o *Owner) Doc() (*engine.Doc, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.alive {
		return nil, errors.Destroyed(errors.PhaseDoc, "document")
	}
	return o.doc, nil
}

// Alive reports whether the owner has not been destroyed.
func (o *Owner) Alive() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.alive
}

// Shared reports whether this owner wraps a document owned elsewhere.
func (o *Owner) Shared() bool {
	return o.shared
}

// AddSubscription records a registered subscription under the embedder's id,
// taking ownership of the engine token and the pinned callback ref. A
// duplicate id is an error; the caller keeps ownership of both arguments and
// must drop them itself.
func (o *Owner) AddSubscription(id uint64, token *engine.Subscription, ref host.Ref) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive {
		return errors.Destroyed(errors.PhaseDoc, "document")
	}
	if _, exists := o.subs[id]; exists {
		return errors.Duplicate(errors.PhaseObserve, "subscription", id)
	}
	o.subs[id] = subEntry{token: token, ref: ref}
	return nil
}

// RemoveSubscription detaches the subscription with the given id from the
// owner and hands its token and ref back to the caller, who drops them
// outside this owner's lock. An unknown id returns ok=false with no error.
func (o *Owner) RemoveSubscription(id uint64) (*engine.Subscription, host.Ref, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.subs[id]
	if !ok {
		return nil, nil, false
	}
	delete(o.subs, id)
	return entry.token, entry.ref, true
}

// LookupRef returns the pinned callback ref for a registered subscription.
func (o *Owner) LookupRef(id uint64) (host.Ref, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.subs[id]
	if !ok {
		return nil, false
	}
	return entry.ref, true
}

// SubscriptionCount returns the number of registered subscriptions.
func (o *Owner) SubscriptionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

// Destroy marks the owner dead and tears down every subscription: tokens are
// dropped first so no further callback can fire, then the refs are released.
// Both happen outside the owner's lock. Destroy is idempotent.
func (o *Owner) Destroy() {
	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.alive = false
	entries := make([]subEntry, 0, len(o.subs))
	for _, e := range o.subs {
		entries = append(entries, e)
	}
	o.subs = make(map[uint64]subEntry)
	o.mu.Unlock()

	for _, e := range entries {
		e.token.Drop()
	}
	for _, e := range entries {
		if e.ref != nil {
			e.ref.Release()
		}
	}
}
