package bridge

import (
	"github.com/edpaget/ycrdt-bridge/document"
	"github.com/edpaget/ycrdt-bridge/engine"
	"github.com/edpaget/ycrdt-bridge/errors"
	"github.com/edpaget/ycrdt-bridge/handle"
)

// Value is the tagged union crossing the boundary. It mirrors the engine's
// value shapes except that nested documents travel as document handles: a
// read that yields a document allocates a fresh handle the caller owns and
// must destroy.
type Value struct {
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	Doc   handle.Handle
	Bool  bool
	Kind  engine.ValueKind
}

func NullValue() Value               { return Value{Kind: engine.KindNull} }
func BoolValue(b bool) Value         { return Value{Kind: engine.KindBool, Bool: b} }
func IntValue(i int64) Value         { return Value{Kind: engine.KindInt, Int: i} }
func FloatValue(f float64) Value     { return Value{Kind: engine.KindFloat, Float: f} }
func StringValue(s string) Value     { return Value{Kind: engine.KindString, Str: s} }
func BytesValue(b []byte) Value      { return Value{Kind: engine.KindBytes, Bytes: b} }
func DocHandle(h handle.Handle) Value { return Value{Kind: engine.KindDoc, Doc: h} }

// importValue converts a boundary value into an engine value. A document
// handle resolves to the underlying document; storing it clones its state.
func (b *Bridge) importValue(v Value) (engine.Value, error) {
	switch v.Kind {
	case engine.KindNull:
		return engine.Null(), nil
	case engine.KindBool:
		return engine.BoolValue(v.Bool), nil
	case engine.KindInt:
		return engine.IntValue(v.Int), nil
	case engine.KindFloat:
		return engine.FloatValue(v.Float), nil
	case engine.KindString:
		return engine.StringValue(v.Str), nil
	case engine.KindBytes:
		return engine.BytesValue(v.Bytes), nil
	case engine.KindDoc:
		d, err := b.resolveDoc(v.Doc)
		if err != nil {
			return engine.Value{}, err
		}
		return engine.DocValue(d), nil
	default:
		return engine.Value{}, errors.InvalidInput(errors.PhaseContainer,
			"unsupported value kind "+v.Kind.String())
	}
}

// exportValue converts an engine value read out of a container into a
// boundary value. Nested documents are wrapped into shared owners and handed
// out as fresh handles; containers cross as their string form.
func (b *Bridge) exportValue(v engine.Value) (Value, error) {
	switch v.Kind {
	case engine.KindNull:
		return NullValue(), nil
	case engine.KindBool:
		return BoolValue(v.Bool), nil
	case engine.KindInt:
		return IntValue(v.Int), nil
	case engine.KindFloat:
		return FloatValue(v.Float), nil
	case engine.KindString:
		return StringValue(v.Str), nil
	case engine.KindBytes:
		return BytesValue(v.Bytes), nil
	case engine.KindDoc:
		d, _ := v.AsDoc()
		h, err := b.docs.Insert(document.WrapShared(d))
		if err != nil {
			return Value{}, err
		}
		return DocHandle(h), nil
	case engine.KindContainer:
		return StringValue(v.ToGo().(string)), nil
	default:
		return Value{}, errors.InvalidData(errors.PhaseContainer,
			"unexportable value kind "+v.Kind.String())
	}
}

// importValues converts a slice of boundary values.
func (b *Bridge) importValues(vs []Value) ([]engine.Value, error) {
	out := make([]engine.Value, len(vs))
	for i, v := range vs {
		ev, err := b.importValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// importAttrs converts a boundary attribute map.
func (b *Bridge) importAttrs(attrs map[string]Value) (map[string]engine.Value, error) {
	if attrs == nil {
		return nil, nil
	}
	out := make(map[string]engine.Value, len(attrs))
	for k, v := range attrs {
		ev, err := b.importValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = ev
	}
	return out, nil
}
