package engine

import (
	"sync"
)

// ContainerKind identifies the shape of a named container.
type ContainerKind uint8

const (
	ContainerText ContainerKind = iota
	ContainerList
	ContainerMap
	ContainerXML
)

func (k ContainerKind) String() string {
	switch k {
	case ContainerText:
		return "text"
	case ContainerList:
		return "list"
	case ContainerMap:
		return "map"
	case ContainerXML:
		return "xml"
	default:
		return "unknown"
	}
}

// ObserverFunc receives the coalesced change description for one committed
// transaction. It runs synchronously on the committing goroutine, whatever
// goroutine that is, with the committing transaction still open for reads.
type ObserverFunc func(txn *Txn, change ChangeSet)

// Container is a named, typed sub-structure of a document.
type Container interface {
	Name() string
	ContainerKind() ContainerKind
	Doc() *Doc

	// Observe registers fn for every committed transaction that touches this
	// container. The returned Subscription is the native token; dropping it
	// unregisters the callback.
	Observe(fn ObserverFunc) *Subscription

	// ToJSON renders the container's content.
	ToJSON(txn *Txn) (string, error)

	base() *containerBase
	snapshotState() any
	changesSince(prev any) *ChangeSet
	stringForm() string
	jsonValue() any
}

// Subscription is the engine-side token for one registered observer.
// Drop is idempotent and safe to call while a dispatch is in flight.
type Subscription struct {
	owner *containerBase
	id    uint64
	once  sync.Once
}

// Drop unregisters the observer.
func (s *Subscription) Drop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.owner.obsMu.Lock()
		delete(s.owner.observers, s.id)
		s.owner.obsMu.Unlock()
	})
}

// Container returns the container this subscription watches.
func (s *Subscription) Container() Container {
	return s.owner.self
}

type containerBase struct {
	doc       *Doc
	self      Container
	observers map[uint64]ObserverFunc
	name      string
	nextObs   uint64
	obsMu     sync.RWMutex
	kind      ContainerKind
}

func newContainerBase(doc *Doc, self Container, name string, kind ContainerKind) containerBase {
	return containerBase{
		doc:       doc,
		self:      self,
		name:      name,
		kind:      kind,
		observers: make(map[uint64]ObserverFunc),
	}
}

func (b *containerBase) Name() string                 { return b.name }
func (b *containerBase) ContainerKind() ContainerKind { return b.kind }
func (b *containerBase) Doc() *Doc                    { return b.doc }
func (b *containerBase) base() *containerBase         { return b }

func (b *containerBase) Observe(fn ObserverFunc) *Subscription {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()

	b.nextObs++
	id := b.nextObs
	b.observers[id] = fn
	return &Subscription{owner: b, id: id}
}

// dispatch fans the change set out to registered observers. The observer set
// is copied under the read lock and invoked outside it, so an observer (or a
// concurrent teardown) may drop subscriptions without deadlocking.
func (b *containerBase) dispatch(txn *Txn, change ChangeSet) {
	b.obsMu.RLock()
	fns := make([]ObserverFunc, 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.obsMu.RUnlock()

	for _, fn := range fns {
		fn(txn, change)
	}
}

func (b *containerBase) observerCount() int {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	return len(b.observers)
}
