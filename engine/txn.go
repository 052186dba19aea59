package engine

import (
	"sort"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// Txn is one bounded unit of read or mutating access to a document.
//
// A write transaction holds the document's write gate from BeginWrite until
// Commit; mutations are applied live, in call order, and observers see one
// coalesced change description per container when the transaction commits.
type Txn struct {
	doc      *Doc
	touched  map[string]touchedContainer
	ops      []op
	origin   string
	writable bool
	done     bool
	external bool // replaying a decoded update; ops arrive pre-stamped
}

type touchedContainer struct {
	cont Container
	pre  any
}

// Writable reports whether this transaction may mutate.
func (t *Txn) Writable() bool {
	return t != nil && t.writable
}

// Origin returns the transaction's origin marker, empty unless the
// transaction was opened with BeginWriteWithOrigin.
func (t *Txn) Origin() string {
	if t == nil {
		return ""
	}
	return t.origin
}

// check validates the transaction against a container operation.
func (t *Txn) check(c Container, write bool) error {
	if err := t.checkDoc(c.Doc(), write); err != nil {
		return err
	}
	return nil
}

// checkDoc validates the transaction against a document-level operation.
func (t *Txn) checkDoc(d *Doc, write bool) error {
	if t == nil {
		return errors.InvalidHandle(errors.PhaseTxn, "transaction")
	}
	if t.done {
		return errors.InvalidInput(errors.PhaseTxn, "transaction already committed")
	}
	if t.doc != d {
		return errors.InvalidInput(errors.PhaseTxn, "transaction belongs to a different document")
	}
	if write && !t.writable {
		return errors.ReadOnly(errors.PhaseTxn, "mutation")
	}
	return nil
}

// touch snapshots a container's pre-state the first time the transaction
// mutates it. The snapshot is what commit diffs against.
func (t *Txn) touch(c Container) {
	if t.touched == nil {
		t.touched = make(map[string]touchedContainer)
	}
	name := c.Name()
	if _, ok := t.touched[name]; !ok {
		t.touched[name] = touchedContainer{cont: c, pre: c.snapshotState()}
	}
}

// record buffers an operation for the log. Skipped while replaying a decoded
// update, whose ops are appended with their original ids by the caller.
func (t *Txn) record(o op) {
	if t.external {
		return
	}
	t.ops = append(t.ops, o)
}

// Commit finalizes the transaction and releases the document gate.
//
// For a write transaction this stamps and appends the buffered operations to
// the document log, then delivers one ChangeSet per touched container to that
// container's observers, synchronously, before the gate is released. A read
// transaction just releases its shared hold.
func (t *Txn) Commit() error {
	if t == nil {
		return errors.InvalidHandle(errors.PhaseTxn, "transaction")
	}
	if t.done {
		return errors.InvalidInput(errors.PhaseTxn, "transaction already committed")
	}

	if !t.writable {
		t.done = true
		t.doc.txnMu.RUnlock()
		return nil
	}

	d := t.doc
	defer func() {
		t.done = true
		d.txnMu.Unlock()
	}()

	// Stamp locally recorded ops with this replica's ids.
	for i := range t.ops {
		t.ops[i].Replica = d.replica
		t.ops[i].Clock = d.clock
		d.clock++
	}
	if len(t.ops) > 0 {
		d.log = append(d.log, t.ops...)
		d.sv[d.replica] = d.clock
	}

	// One coalesced change description per touched container, in stable
	// name order.
	names := make([]string, 0, len(t.touched))
	for name := range t.touched {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tc := t.touched[name]
		change := tc.cont.changesSince(tc.pre)
		if change == nil {
			continue
		}
		change.Origin = t.origin
		tc.cont.base().dispatch(t, *change)
	}

	return nil
}
