package bridge

import (
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// Update exchange entry points. Updates and state vectors are opaque byte
// buffers; the caller moves them between replicas however it likes.

// EncodeStateAsUpdate encodes the document's full history as one update.
func (b *Bridge) EncodeStateAsUpdate(doc handle.Handle) ([]byte, error) {
	d, err := b.resolveDoc(doc)
	if err != nil {
		return nil, err
	}
	return engine.EncodeStateAsUpdate(d)
}

// EncodeStateVector encodes the document's version summary.
func (b *Bridge) EncodeStateVector(doc handle.Handle) ([]byte, error) {
	d, err := b.resolveDoc(doc)
	if err != nil {
		return nil, err
	}
	return engine.EncodeStateVector(d)
}

// EncodeDiff encodes the ops the holder of the given state vector is missing.
func (b *Bridge) EncodeDiff(doc handle.Handle, stateVector []byte) ([]byte, error) {
	d, err := b.resolveDoc(doc)
	if err != nil {
		return nil, err
	}
	return engine.EncodeDiff(d, stateVector)
}

// ApplyUpdate applies an update inside one write transaction. Observers see
// one coalesced event per touched container, same as a local commit.
func (b *Bridge) ApplyUpdate(doc handle.Handle, update []byte) error {
	d, err := b.resolveDoc(doc)
	if err != nil {
		return err
	}
	return engine.ApplyUpdate(d, update)
}

// MergeUpdates combines several encoded updates into one without a document.
func (b *Bridge) MergeUpdates(updates [][]byte) ([]byte, error) {
	return engine.MergeUpdates(updates)
}
