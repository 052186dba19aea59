// Package ycrdtbridge is the root of a handle-based boundary layer that lets
// a garbage-collected embedding runtime drive a replicated document engine
// safely.
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	ycrdt-bridge/        Root package documentation
//	├── bridge/          The boundary surface: handles, transactions, observers
//	├── engine/          Document engine: containers, change sets, update codec
//	├── document/        Document owner: subscription and callback-ref lifetime
//	├── handle/          Generational handle arena
//	├── host/            Host runtime abstraction (in-process and wasm guests)
//	├── errors/          Structured phase/kind errors
//	└── cmd/docview/     Interactive document inspector
//
// Embedders hold opaque handles, never pointers: a stale handle resolves to a
// typed error instead of undefined behavior. See package bridge for the full
// boundary contract.
package ycrdtbridge
