// Package engine is the document engine boundary: transactions, containers,
// observation, and the binary update codec.
//
// The bridge treats the engine as an external collaborator; this package
// defines the capability surface the bridge consumes (documents, get-or-create
// named containers, begin/commit transactions, per-container read, mutate and
// observe primitives, encode/decode/merge of updates) and provides a
// single-process reference implementation of it.
//
// # Transactions
//
// Every read and mutation happens inside a Txn. A document has at most one
// open write transaction; BeginWrite blocks until it can take the gate.
// Mutations apply in call order, and committing delivers exactly one
// coalesced ChangeSet per touched container to that container's observers,
// synchronously on the committing goroutine:
//
//	txn := doc.BeginWrite()
//	list, _ := doc.GetList("items")
//	_ = list.Push(txn, engine.StringValue("a"))
//	_ = list.Push(txn, engine.StringValue("b"))
//	_ = txn.Commit() // observers fire here, once
//
// # Updates
//
// EncodeStateAsUpdate, EncodeStateVector, EncodeDiff, ApplyUpdate and
// MergeUpdates exchange document state as opaque byte buffers. Ops carry
// (replica, clock) ids; applying an update replays only unseen ops.
//
// This reference implementation replays position-addressed ops and does not
// resolve conflicts between concurrent edits of the same region; that is the
// external CRDT engine's job. Single-writer histories, forks, snapshots and
// diffs are exact.
package engine
