package engine

import (
	"fmt"
)

// ValueKind discriminates the tagged union stored in container slots.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindDoc       // nested sub-document
	KindContainer // another container, summarized by its string form on read
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDoc:
		return "doc"
	case KindContainer:
		return "container"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the tagged union a container slot holds.
type Value struct {
	Doc       *Doc
	Container Container
	Str       string
	Bytes     []byte
	Int       int64
	Float     float64
	Bool      bool
	Kind      ValueKind
}

func Null() Value                { return Value{Kind: KindNull} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func DocValue(d *Doc) Value      { return Value{Kind: KindDoc, Doc: d} }

// ToGo converts a Value back into a plain Go value. Nested documents come
// back as *Doc; containers come back as their string form.
func (v Value) ToGo() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindBytes:
		return v.Bytes
	case KindDoc:
		return v.Doc
	case KindContainer:
		return v.Container.stringForm()
	default:
		return nil
	}
}

// jsonValue is like ToGo but renders nested documents as JSON objects so a
// parent render recurses instead of exposing a pointer.
func (v Value) jsonValue() any {
	switch v.Kind {
	case KindDoc:
		return v.Doc.snapshotJSON()
	case KindContainer:
		return v.Container.stringForm()
	default:
		return v.ToGo()
	}
}

// AsDoc returns the nested document held by this value, if any.
func (v Value) AsDoc() (*Doc, bool) {
	if v.Kind != KindDoc {
		return nil, false
	}
	return v.Doc, true
}

// Equal reports semantic equality. Nested documents compare by identity.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		if len(v.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	case KindDoc:
		return v.Doc == o.Doc
	case KindContainer:
		return v.Container == o.Container
	default:
		return false
	}
}

func attrsEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

func copyAttrs(a map[string]Value) map[string]Value {
	if a == nil {
		return nil
	}
	out := make(map[string]Value, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
