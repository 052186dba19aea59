package bridge

import (
	"go.uber.org/zap"

	"github.com/edpaget/ycrdt-bridge/document"
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/errors"
	"github.com/edpaget/ycrdt-bridge/handle"
	"github.com/edpaget/ycrdt-bridge/host"
)

// Bridge is one boundary instance: the handle tables and the host runtime
// callbacks dispatch into. A Bridge is safe for concurrent use.
type Bridge struct {
	runtime host.Runtime
	method  string

	docs  *handle.Arena[*document.Owner]
	txns  *handle.Arena[*boundTxn]
	texts *handle.Arena[contRef[*engine.Text]]
	lists *handle.Arena[contRef[*engine.List]]
	maps  *handle.Arena[contRef[*engine.Map]]
	xmls  *handle.Arena[contRef[*engine.XMLElement]]
}

// boundTxn ties an open engine transaction to the owner it was begun on.
type boundTxn struct {
	owner *document.Owner
	txn   *engine.Txn
}

// contRef ties a resolved container to its document's owner, so container
// operations can detect a destroyed document and open implicit transactions.
type contRef[C engine.Container] struct {
	owner *document.Owner
	cont  C
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithCallbackMethod sets the method name dispatch invokes on pinned callback
// targets. The default is "OnEvent".
func WithCallbackMethod(name string) Option {
	return func(b *Bridge) { b.method = name }
}

// New creates a bridge dispatching callbacks into the given host runtime.
func New(rt host.Runtime, opts ...Option) *Bridge {
	b := &Bridge{
		runtime: rt,
		method:  "OnEvent",
		docs:    handle.NewArena[*document.Owner]("document"),
		txns:    handle.NewArena[*boundTxn]("transaction"),
		texts:   handle.NewArena[contRef[*engine.Text]]("text"),
		lists:   handle.NewArena[contRef[*engine.List]]("list"),
		maps:    handle.NewArena[contRef[*engine.Map]]("map"),
		xmls:    handle.NewArena[contRef[*engine.XMLElement]]("xml"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close destroys every live document and frees all handle tables. Open
// transactions are committed so no document gate stays held.
func (b *Bridge) Close() error {
	for _, bt := range b.txns.Drain() {
		if err := bt.txn.Commit(); err != nil {
			Logger().Warn("commit of leaked transaction failed", zap.Error(err))
		}
	}
	b.texts.Close()
	b.lists.Close()
	b.maps.Close()
	b.xmls.Close()

	for _, owner := range b.docs.Drain() {
		owner.Destroy()
	}
	b.docs.Close()
	b.txns.Close()
	return nil
}

// DocNew creates a document with a random replica id and returns its handle.
func (b *Bridge) DocNew() (handle.Handle, error) {
	return b.docs.Insert(document.New(engine.NewDoc()))
}

// DocNewWithClientID creates a document with an explicit replica id.
func (b *Bridge) DocNewWithClientID(id uint64) (handle.Handle, error) {
	return b.docs.Insert(document.New(engine.NewDocWithClientID(id)))
}

// DocClientID returns the document's replica identity.
func (b *Bridge) DocClientID(h handle.Handle) (uint64, error) {
	d, err := b.resolveDoc(h)
	if err != nil {
		return 0, err
	}
	return d.ClientID(), nil
}

// DocDestroy frees the document handle and destroys its owner: all observer
// subscriptions are unregistered, then their callback refs released.
// Container and transaction handles into the document become unusable but
// must still be freed by their holders.
func (b *Bridge) DocDestroy(h handle.Handle) error {
	owner, err := b.docs.Remove(h)
	if err != nil {
		return err
	}
	if owner != nil {
		owner.Destroy()
	}
	return nil
}

// DocGetText returns a handle to the named text container, creating it if
// absent.
func (b *Bridge) DocGetText(h handle.Handle, name string) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(h)
	if err != nil {
		return handle.Zero, err
	}
	t, err := d.GetText(name)
	if err != nil {
		return handle.Zero, err
	}
	return b.texts.Insert(contRef[*engine.Text]{owner: owner, cont: t})
}

// DocGetList returns a handle to the named list container, creating it if
// absent.
func (b *Bridge) DocGetList(h handle.Handle, name string) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(h)
	if err != nil {
		return handle.Zero, err
	}
	l, err := d.GetList(name)
	if err != nil {
		return handle.Zero, err
	}
	return b.lists.Insert(contRef[*engine.List]{owner: owner, cont: l})
}

// DocGetMap returns a handle to the named map container, creating it if
// absent.
func (b *Bridge) DocGetMap(h handle.Handle, name string) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(h)
	if err != nil {
		return handle.Zero, err
	}
	m, err := d.GetMap(name)
	if err != nil {
		return handle.Zero, err
	}
	return b.maps.Insert(contRef[*engine.Map]{owner: owner, cont: m})
}

// DocGetXMLElement returns a handle to the named XML root element, creating
// it if absent.
func (b *Bridge) DocGetXMLElement(h handle.Handle, name string) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(h)
	if err != nil {
		return handle.Zero, err
	}
	x, err := d.GetXMLElement(name)
	if err != nil {
		return handle.Zero, err
	}
	return b.xmls.Insert(contRef[*engine.XMLElement]{owner: owner, cont: x})
}

// DocContainerNames returns the names of the document's containers, sorted.
func (b *Bridge) DocContainerNames(h handle.Handle) ([]string, error) {
	d, err := b.resolveDoc(h)
	if err != nil {
		return nil, err
	}
	return d.ContainerNames(), nil
}

// DocToJSON renders the whole document as JSON.
func (b *Bridge) DocToJSON(h, txn handle.Handle) (string, error) {
	owner, d, err := b.resolveOwner(h)
	if err != nil {
		return "", err
	}
	var out string
	err = b.withRead(owner, txn, func(t *engine.Txn) error {
		var jerr error
		out, jerr = d.ToJSON(t)
		return jerr
	})
	return out, err
}

// TxnBeginRead opens a shared read transaction on the document and returns
// its handle. The transaction must be committed to release the hold.
func (b *Bridge) TxnBeginRead(doc handle.Handle) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(doc)
	if err != nil {
		return handle.Zero, err
	}
	return b.txns.Insert(&boundTxn{owner: owner, txn: d.BeginRead()})
}

// TxnBeginWrite opens the document's exclusive write transaction, blocking
// until it is available, and returns its handle.
func (b *Bridge) TxnBeginWrite(doc handle.Handle) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(doc)
	if err != nil {
		return handle.Zero, err
	}
	return b.txns.Insert(&boundTxn{owner: owner, txn: d.BeginWrite()})
}

// TxnBeginWriteWithOrigin is TxnBeginWrite with an origin marker observers
// will see on the resulting events.
func (b *Bridge) TxnBeginWriteWithOrigin(doc handle.Handle, origin string) (handle.Handle, error) {
	owner, d, err := b.resolveOwner(doc)
	if err != nil {
		return handle.Zero, err
	}
	return b.txns.Insert(&boundTxn{owner: owner, txn: d.BeginWriteWithOrigin(origin)})
}

// TxnCommit commits the transaction and frees its handle. For a write
// transaction this is the point observers fire.
func (b *Bridge) TxnCommit(h handle.Handle) error {
	bt, err := b.txns.Remove(h)
	if err != nil {
		return err
	}
	if bt == nil {
		return errors.InvalidHandle(errors.PhaseTxn, "transaction")
	}
	return bt.txn.Commit()
}

// TextRelease frees a text container handle. The container itself lives as
// long as its document.
func (b *Bridge) TextRelease(h handle.Handle) error {
	_, err := b.texts.Remove(h)
	return err
}

// ListRelease frees a list container handle.
func (b *Bridge) ListRelease(h handle.Handle) error {
	_, err := b.lists.Remove(h)
	return err
}

// MapRelease frees a map container handle.
func (b *Bridge) MapRelease(h handle.Handle) error {
	_, err := b.maps.Remove(h)
	return err
}

// XMLRelease frees an XML container handle.
func (b *Bridge) XMLRelease(h handle.Handle) error {
	_, err := b.xmls.Remove(h)
	return err
}

// Unobserve unregisters the subscription with the given id from the document.
// An unknown id is a no-op. The callback ref is released only after the
// subscription can no longer fire.
func (b *Bridge) Unobserve(doc handle.Handle, id uint64) error {
	owner, err := b.docs.Get(doc)
	if err != nil {
		return err
	}
	token, ref, ok := owner.RemoveSubscription(id)
	if !ok {
		return nil
	}
	token.Drop()
	if ref != nil {
		if rerr := ref.Release(); rerr != nil {
			Logger().Warn("release of callback ref failed", zap.Error(rerr))
		}
	}
	return nil
}

// resolveOwner resolves a document handle to its live owner and document.
func (b *Bridge) resolveOwner(h handle.Handle) (*document.Owner, *engine.Doc, error) {
	owner, err := b.docs.Get(h)
	if err != nil {
		return nil, nil, err
	}
	d, err := owner.Doc()
	if err != nil {
		return nil, nil, err
	}
	return owner, d, nil
}

func (b *Bridge) resolveDoc(h handle.Handle) (*engine.Doc, error) {
	_, d, err := b.resolveOwner(h)
	return d, err
}

// withRead runs fn inside the given transaction, or an implicit one-shot read
// transaction when the zero handle is passed.
func (b *Bridge) withRead(owner *document.Owner, h handle.Handle, fn func(*engine.Txn) error) error {
	if h != handle.Zero {
		bt, err := b.txns.Get(h)
		if err != nil {
			return err
		}
		return fn(bt.txn)
	}
	d, err := owner.Doc()
	if err != nil {
		return err
	}
	txn := d.BeginRead()
	ferr := fn(txn)
	if cerr := txn.Commit(); ferr == nil {
		ferr = cerr
	}
	return ferr
}

// withWrite is withRead for mutations: the implicit transaction is a write
// transaction, committed (observers firing) before the call returns.
func (b *Bridge) withWrite(owner *document.Owner, h handle.Handle, fn func(*engine.Txn) error) error {
	if h != handle.Zero {
		bt, err := b.txns.Get(h)
		if err != nil {
			return err
		}
		return fn(bt.txn)
	}
	d, err := owner.Doc()
	if err != nil {
		return err
	}
	txn := d.BeginWrite()
	ferr := fn(txn)
	if cerr := txn.Commit(); ferr == nil {
		ferr = cerr
	}
	return ferr
}

// observe pins the callback target and registers an observer under id. On any
// failure the registration is fully undone.
func (b *Bridge) observe(owner *document.Owner, cont engine.Container, id uint64, target any) error {
	ref, err := b.runtime.Pin(target)
	if err != nil {
		return err
	}
	token := cont.Observe(b.observerFunc(owner, cont, id))
	if err := owner.AddSubscription(id, token, ref); err != nil {
		token.Drop()
		if rerr := ref.Release(); rerr != nil {
			Logger().Warn("release of callback ref failed", zap.Error(rerr))
		}
		return err
	}
	return nil
}
