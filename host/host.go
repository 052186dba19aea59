package host

// Ref is a pinned reference to a callback target owned by the embedding
// runtime. The target stays invokable until Release, regardless of what the
// embedder's garbage collector does in the meantime. Release is idempotent.
type Ref interface {
	Release() error
}

// Attachment is one goroutine's claim on the runtime, held across one or more
// invocations. Detach returns the claim; the attachment must not be used
// after that.
type Attachment interface {
	// Invoke calls the method named on the pinned target, passing the
	// serialized payload. The ref must have been pinned by the same runtime.
	Invoke(ref Ref, method string, payload []byte) error

	Detach() error
}

// Runtime is the embedding runtime the bridge dispatches callbacks into.
type Runtime interface {
	// Pin takes ownership of a callback target and returns a ref that keeps
	// it invokable until released.
	Pin(target any) (Ref, error)

	// Attach claims the runtime for the calling goroutine.
	Attach() (Attachment, error)
}
