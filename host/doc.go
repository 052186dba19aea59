// Package host abstracts the embedding runtime that consumes the bridge.
//
// The bridge never calls back into the embedder directly. It pins callback
// targets into Refs, and at dispatch time attaches the current goroutine to
// the runtime, invokes through the attachment, and detaches. That keeps the
// callback lifecycle explicit: a Ref stays valid until released no matter
// what the embedder's collector does, and an attachment scopes any
// thread-affine setup the runtime needs.
//
// Two runtimes are provided. LocalRuntime dispatches to in-process Go
// callbacks through reflection and is what tests use. GuestRuntime dispatches
// into a WebAssembly guest module, for embedders compiled to wasm.
package host
