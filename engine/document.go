package engine

import (
	"encoding/json"
	"math/rand"
	"sort"
	"sync"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// Doc is the root of one replicated document: named containers, a replica
// identity, and the committed operation log the update codec works from.
//
// All reads and mutations go through transactions. Write transactions are
// exclusive per document and block until the current one commits; read
// transactions share.
type Doc struct {
	containers map[string]Container
	sv         map[uint64]uint64
	log        []op
	replica    uint64
	clock      uint64
	txnMu      sync.RWMutex
	structMu   sync.Mutex
}

// NewDoc creates an empty document with a random replica id.
func NewDoc() *Doc {
	return NewDocWithClientID(rand.Uint64())
}

// NewDocWithClientID creates an empty document with an explicit replica id.
func NewDocWithClientID(id uint64) *Doc {
	return &Doc{
		containers: make(map[string]Container),
		sv:         make(map[uint64]uint64),
		replica:    id,
	}
}

// ClientID returns the document's replica identity.
func (d *Doc) ClientID() uint64 {
	return d.replica
}

// BeginRead opens a shared read transaction. It blocks while a write
// transaction is open.
func (d *Doc) BeginRead() *Txn {
	d.txnMu.RLock()
	return &Txn{doc: d}
}

// BeginWrite opens the document's single mutating transaction. It blocks
// until any open transaction commits.
func (d *Doc) BeginWrite() *Txn {
	d.txnMu.Lock()
	return &Txn{doc: d, writable: true}
}

// BeginWriteWithOrigin opens a write transaction tagged with an origin
// marker. Observers see the marker on the change sets the commit delivers.
func (d *Doc) BeginWriteWithOrigin(origin string) *Txn {
	d.txnMu.Lock()
	return &Txn{doc: d, writable: true, origin: origin}
}

func (d *Doc) getOrCreate(name string, kind ContainerKind, create func() Container) (Container, error) {
	d.structMu.Lock()
	defer d.structMu.Unlock()

	if c, ok := d.containers[name]; ok {
		if c.ContainerKind() != kind {
			return nil, errors.TypeMismatch(errors.PhaseContainer,
				kind.String(), c.ContainerKind().String())
		}
		return c, nil
	}
	c := create()
	d.containers[name] = c
	return c, nil
}

// GetText returns the named text container, creating it if absent.
func (d *Doc) GetText(name string) (*Text, error) {
	c, err := d.getOrCreate(name, ContainerText, func() Container {
		t := &Text{}
		t.containerBase = newContainerBase(d, t, name, ContainerText)
		return t
	})
	if err != nil {
		return nil, err
	}
	return c.(*Text), nil
}

// GetList returns the named list container, creating it if absent.
func (d *Doc) GetList(name string) (*List, error) {
	c, err := d.getOrCreate(name, ContainerList, func() Container {
		l := &List{}
		l.containerBase = newContainerBase(d, l, name, ContainerList)
		return l
	})
	if err != nil {
		return nil, err
	}
	return c.(*List), nil
}

// GetMap returns the named map container, creating it if absent.
func (d *Doc) GetMap(name string) (*Map, error) {
	c, err := d.getOrCreate(name, ContainerMap, func() Container {
		m := &Map{entries: make(map[string]Value)}
		m.containerBase = newContainerBase(d, m, name, ContainerMap)
		return m
	})
	if err != nil {
		return nil, err
	}
	return c.(*Map), nil
}

// GetXMLElement returns the named XML root element, creating it if absent.
// The element's tag defaults to the container name.
func (d *Doc) GetXMLElement(name string) (*XMLElement, error) {
	c, err := d.getOrCreate(name, ContainerXML, func() Container {
		x := &XMLElement{body: xmlBody{tag: name, attrs: make(map[string]Value)}}
		x.containerBase = newContainerBase(d, x, name, ContainerXML)
		return x
	})
	if err != nil {
		return nil, err
	}
	return c.(*XMLElement), nil
}

// Container looks up an existing container by name.
func (d *Doc) Container(name string) (Container, bool) {
	d.structMu.Lock()
	defer d.structMu.Unlock()
	c, ok := d.containers[name]
	return c, ok
}

// ContainerNames returns the names of all containers, sorted.
func (d *Doc) ContainerNames() []string {
	d.structMu.Lock()
	defer d.structMu.Unlock()

	names := make([]string, 0, len(d.containers))
	for name := range d.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToJSON renders the whole document as a JSON object keyed by container name.
func (d *Doc) ToJSON(txn *Txn) (string, error) {
	if err := txn.checkDoc(d, false); err != nil {
		return "", err
	}

	root := make(map[string]any)
	for _, name := range d.ContainerNames() {
		c, _ := d.Container(name)
		root[name] = c.jsonValue()
	}
	data, err := json.Marshal(root)
	if err != nil {
		return "", errors.Wrap(errors.PhaseCodec, errors.KindInvalidData, err, "render document")
	}
	return string(data), nil
}

// snapshotJSON renders the document under its own short read transaction.
// Used when a nested document value is reached during a parent render.
func (d *Doc) snapshotJSON() any {
	txn := d.BeginRead()
	defer txn.Commit()

	root := make(map[string]any)
	for _, name := range d.ContainerNames() {
		c, _ := d.Container(name)
		root[name] = c.jsonValue()
	}
	return root
}

// Fork produces an independent deep copy of the document's state by
// round-tripping it through the update codec. The copy keeps the original
// operation ids but gets its own replica identity for future edits.
func (d *Doc) Fork() (*Doc, error) {
	update, err := EncodeStateAsUpdate(d)
	if err != nil {
		return nil, err
	}
	fork := NewDoc()
	if err := ApplyUpdate(fork, update); err != nil {
		return nil, err
	}
	return fork, nil
}

// cloneForStore applies the boundary's value semantics for nested documents:
// storing a document clones its state rather than aliasing it.
func cloneForStore(v Value) (Value, error) {
	if v.Kind != KindDoc {
		return v, nil
	}
	fork, err := v.Doc.Fork()
	if err != nil {
		return Value{}, err
	}
	return DocValue(fork), nil
}
