// Package document owns the lifetime of one engine document on behalf of the
// bridge: the document itself, every observer subscription registered against
// it, and the pinned host callback refs those subscriptions dispatch to.
//
// An Owner is the unit the handle table stores. Destroying it unregisters all
// subscriptions before releasing their callback refs, so no callback can fire
// against a released ref. Subscription tokens and refs are handed back to the
// caller for dropping outside the owner's lock; an observer running at
// destroy time can therefore finish without deadlocking against teardown.
package document
