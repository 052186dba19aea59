package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// GuestRuntime dispatches callbacks into a WebAssembly guest module.
//
// The guest contract is small: it exports "alloc" (size i32 -> ptr i32) for
// payload delivery, and one exported function per callback target with
// signature (ptr i32, len i32) -> status i32, where a non-zero status is a
// callback failure. Pin targets are export names; the method argument at
// invoke time is ignored because the export itself identifies the entry
// point.
//
// Guest modules are single-threaded, so an attachment holds an exclusive
// claim for its lifetime. Attach blocks until the claim is available.
type GuestRuntime struct {
	runtime wazero.Runtime
	module  api.Module
	alloc   api.Function
	callMu  sync.Mutex
	closed  atomic.Bool
}

// NewGuestRuntime compiles and instantiates a guest module from wasm bytes.
func NewGuestRuntime(ctx context.Context, wasm []byte) (*GuestRuntime, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	mod, err := rt.Instantiate(ctx, wasm)
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHost, errors.KindAttachFailed, err, "instantiate guest module")
	}
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		rt.Close(ctx)
		return nil, errors.InvalidInput(errors.PhaseHost, "guest module does not export alloc")
	}
	return &GuestRuntime{runtime: rt, module: mod, alloc: alloc}, nil
}

// Close tears down the guest instance. Refs and attachments become invalid.
func (r *GuestRuntime) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.runtime.Close(ctx)
}

type guestRef struct {
	rt       *GuestRuntime
	fn       api.Function
	export   string
	released atomic.Bool
}

// Pin resolves a guest export by name. The target must be a string.
func (r *GuestRuntime) Pin(target any) (Ref, error) {
	name, ok := target.(string)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseHost, "guest pin target must be an export name")
	}
	if r.closed.Load() {
		return nil, errors.Destroyed(errors.PhaseHost, "guest runtime")
	}
	fn := r.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "guest export", name)
	}
	return &guestRef{rt: r, fn: fn, export: name}, nil
}

func (ref *guestRef) Release() error {
	ref.released.Store(true)
	return nil
}

type guestAttachment struct {
	rt       *GuestRuntime
	detached atomic.Bool
}

// Attach takes the guest's single-threaded execution claim.
func (r *GuestRuntime) Attach() (Attachment, error) {
	if r.closed.Load() {
		return nil, errors.Destroyed(errors.PhaseHost, "guest runtime")
	}
	r.callMu.Lock()
	return &guestAttachment{rt: r}, nil
}

func (a *guestAttachment) Detach() error {
	if a.detached.Swap(true) {
		return errors.InvalidInput(errors.PhaseHost, "attachment already detached")
	}
	a.rt.callMu.Unlock()
	return nil
}

func (a *guestAttachment) Invoke(ref Ref, method string, payload []byte) error {
	if a.detached.Load() {
		return errors.InvalidInput(errors.PhaseHost, "invoke on detached attachment")
	}
	gr, ok := ref.(*guestRef)
	if !ok || gr.rt != a.rt {
		return errors.InvalidInput(errors.PhaseHost, "ref pinned by a different runtime")
	}
	if gr.released.Load() {
		return errors.Destroyed(errors.PhaseHost, "callback ref")
	}
	if a.rt.closed.Load() {
		return errors.Destroyed(errors.PhaseHost, "guest runtime")
	}

	ctx := context.Background()

	ptr := uint32(0)
	if len(payload) > 0 {
		res, err := a.rt.alloc.Call(ctx, uint64(len(payload)))
		if err != nil {
			return errors.InvokeFailed("alloc", err)
		}
		ptr = uint32(res[0])
		if !a.rt.module.Memory().Write(ptr, payload) {
			return errors.InvalidData(errors.PhaseHost, "payload does not fit guest memory")
		}
	}

	res, err := gr.fn.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return errors.InvokeFailed(gr.export, err)
	}
	if len(res) > 0 && res[0] != 0 {
		return errors.New(errors.PhaseHost, errors.KindInvokeFailed).
			Detail("guest callback %s returned status %d", gr.export, res[0]).
			Build()
	}
	return nil
}
