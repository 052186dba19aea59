// Package handle implements the generational handle table the bridge hands
// out across the boundary.
//
// A Handle is an opaque integer standing in for a natively owned object.
// Handle 0 always means "no object". Each object kind gets its own typed
// Arena, so a document handle can never resolve to a transaction:
//
//	docs := handle.NewArena[*document.Owner]("document")
//	h, _ := docs.Insert(owner)
//	owner, err := docs.Get(h)
//
// Slots carry a generation counter that is bumped on free. A handle kept
// past Remove therefore fails with a stale-handle error instead of silently
// aliasing whatever value reused the slot — use-after-free is a detectable,
// reportable condition rather than undefined behavior.
//
// Exactly-once free remains the caller's obligation: Remove transfers the
// value out of the arena, and the second Remove of the same handle reports
// stale_handle.
package handle
