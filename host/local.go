package host

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/edpaget/ycrdt-bridge/errors"
)

// LocalRuntime dispatches callbacks to in-process Go targets. A target is
// either a func with one of the supported signatures, or a value whose
// exported method of that signature is named at invoke time:
//
//	func(payload []byte) error
//	func(payload []byte)
//
// It counts live refs and attachments so tests can assert the bridge releases
// everything it pins.
type LocalRuntime struct {
	liveRefs    atomic.Int64
	attachments atomic.Int64
}

// NewLocalRuntime returns an empty in-process runtime.
func NewLocalRuntime() *LocalRuntime {
	return &LocalRuntime{}
}

type localRef struct {
	rt       *LocalRuntime
	target   reflect.Value
	release  sync.Once
	released atomic.Bool
}

// Pin takes ownership of a callback target.
func (r *LocalRuntime) Pin(target any) (Ref, error) {
	if target == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "pin of nil target")
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Func, reflect.Ptr, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return nil, errors.InvalidInput(errors.PhaseHost, "pin of nil target")
		}
	}
	r.liveRefs.Add(1)
	return &localRef{rt: r, target: v}, nil
}

func (ref *localRef) Release() error {
	ref.release.Do(func() {
		ref.released.Store(true)
		ref.rt.liveRefs.Add(-1)
	})
	return nil
}

// LiveRefs returns the number of pinned, unreleased refs.
func (r *LocalRuntime) LiveRefs() int {
	return int(r.liveRefs.Load())
}

// Attachments returns the number of attachments not yet detached.
func (r *LocalRuntime) Attachments() int {
	return int(r.attachments.Load())
}

type localAttachment struct {
	rt       *LocalRuntime
	detached atomic.Bool
}

// Attach claims the runtime for the calling goroutine. Local attachments are
// cheap and reentrant; the claim exists so dispatch paths exercise the same
// protocol a foreign runtime requires.
func (r *LocalRuntime) Attach() (Attachment, error) {
	r.attachments.Add(1)
	return &localAttachment{rt: r}, nil
}

func (a *localAttachment) Detach() error {
	if a.detached.Swap(true) {
		return errors.InvalidInput(errors.PhaseHost, "attachment already detached")
	}
	a.rt.attachments.Add(-1)
	return nil
}

func (a *localAttachment) Invoke(ref Ref, method string, payload []byte) error {
	if a.detached.Load() {
		return errors.InvalidInput(errors.PhaseHost, "invoke on detached attachment")
	}
	lr, ok := ref.(*localRef)
	if !ok || lr.rt != a.rt {
		return errors.InvalidInput(errors.PhaseHost, "ref pinned by a different runtime")
	}
	if lr.released.Load() {
		return errors.Destroyed(errors.PhaseHost, "callback ref")
	}

	fn := lr.target
	if fn.Kind() != reflect.Func {
		fn = lr.target.MethodByName(method)
		if !fn.IsValid() {
			return errors.NotFound(errors.PhaseHost, "callback method", method)
		}
	}
	return callTarget(fn, payload)
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// callTarget validates the callable's shape and invokes it.
func callTarget(fn reflect.Value, payload []byte) error {
	t := fn.Type()
	bad := t.NumIn() != 1 || t.In(0) != reflect.TypeOf([]byte(nil)) ||
		t.NumOut() > 1 || (t.NumOut() == 1 && t.Out(0) != errType)
	if bad {
		return errors.New(errors.PhaseHost, errors.KindInvokeFailed).
			Detail("unsupported callback signature %s", t.String()).
			Build()
	}

	out := fn.Call([]reflect.Value{reflect.ValueOf(payload)})
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
