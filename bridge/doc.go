// Package bridge is the boundary surface an embedding runtime drives the
// document engine through.
//
// Nothing crosses the boundary by pointer. Documents, transactions and
// containers are referred to by opaque generational handles; a handle held
// past its object's destruction resolves to a typed stale-handle error
// instead of whatever occupies the slot next. Values cross as a small tagged
// union, with nested documents wrapped into fresh document handles the caller
// must destroy.
//
// Every container operation takes a transaction handle. Passing the zero
// handle runs the operation inside an implicit one-shot transaction of the
// required mode, begun and committed around that single call.
//
// Observers are registered under caller-chosen ids scoped to the document.
// Registration pins the callback target in the host runtime; committed
// transactions deliver one JSON-encoded Event per touched container,
// synchronously on the committing goroutine. Dispatch failures are logged and
// dropped, never surfaced to the committer. Destroying a document unregisters
// every observer before any callback ref is released.
package bridge
