package kvdoc

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PrimType is a primitive schema type.
type PrimType int

const (
	TypeStr PrimType = iota + 1
	TypeInt
	TypeFloat
	TypeBool
	TypeAny
)

var primTypeTokens = map[PrimType]string{
	TypeStr:   "str",
	TypeInt:   "int",
	TypeFloat: "float",
	TypeBool:  "bool",
	TypeAny:   "any",
}

const optionalSuffix = "?"

func (t PrimType) String() string {
	if s, ok := primTypeTokens[t]; ok {
		return s
	}
	return "PrimType(" + strconv.Itoa(int(t)) + ")"
}

func (t PrimType) valid() bool {
	_, ok := primTypeTokens[t]
	return ok
}

// parseToken recognizes primitive tokens like "str" and "int?".
func parseToken(s string) (Primitive, bool) {
	opt := strings.HasSuffix(s, optionalSuffix)
	s = strings.TrimSuffix(s, optionalSuffix)
	for t, tok := range primTypeTokens {
		if tok == s {
			return Primitive{Type: t, Optional: opt}, true
		}
	}
	return Primitive{}, false
}

// Kind is the structural classification of a schema.
type Kind int

const (
	KindPrimitive Kind = iota + 1
	KindPrimitiveArray
	KindSubArray
	KindMultiArray
	KindSub
	KindRoot
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "Primitive"
	case KindPrimitiveArray:
		return "PrimitiveArray"
	case KindSubArray:
		return "SubArray"
	case KindMultiArray:
		return "MultiArray"
	case KindSub:
		return "Sub"
	case KindRoot:
		return "Root"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k Kind) isArray() bool {
	return k == KindPrimitiveArray || k == KindSubArray || k == KindMultiArray
}

// Node is a schema tree: Primitive, Record, Array or Root.
type Node interface {
	Kind() Kind
	String() string
}

// Primitive describes a single primitive value.
type Primitive struct {
	Type     PrimType
	Optional bool
}

var (
	Str   = Primitive{Type: TypeStr}
	Int   = Primitive{Type: TypeInt}
	Float = Primitive{Type: TypeFloat}
	Bool  = Primitive{Type: TypeBool}
	Any   = Primitive{Type: TypeAny}
)

// Opt returns the optional variant of p.
func (p Primitive) Opt() Primitive {
	p.Optional = true
	return p
}

func (p Primitive) Kind() Kind { return KindPrimitive }

func (p Primitive) String() string {
	if p.Optional {
		return p.Type.String() + optionalSuffix
	}
	return p.Type.String()
}

// Record is a nested sub-record.
type Record map[string]Node

func (r Record) Kind() Kind { return KindSub }

func (r Record) String() string {
	return formatFields(r, func(n Node) string { return n.String() })
}

// Array is an array schema. A single element (or several identical
// primitives) describes a homogeneous array, anything else a tuple.
type Array []Node

func (a Array) Kind() Kind {
	var prims, others int
	for _, el := range a {
		if _, ok := el.(Primitive); ok {
			prims++
		} else {
			others++
		}
	}
	switch {
	case prims > 0 && others > 0:
		return KindMultiArray
	case others > 0:
		return KindSubArray
	default:
		return KindPrimitiveArray
	}
}

func (a Array) String() string {
	var buf strings.Builder
	buf.WriteByte('[')
	for i, el := range a {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(el.String())
	}
	buf.WriteByte(']')
	return buf.String()
}

// Field is a top-level field of a Root schema. Pointer fields get their own
// key partition so that records can be looked up by the field value.
type Field struct {
	Type    Node
	Pointer bool
}

// Root is a top-level record schema.
type Root map[string]Field

func (r Root) Kind() Kind { return KindRoot }

func (r Root) String() string {
	return formatFields(r, func(f Field) string {
		if f.Type == nil {
			return "<nil>"
		}
		if f.Pointer {
			return f.Type.String() + " (pointer)"
		}
		return f.Type.String()
	})
}

// Flatten returns the record shape of the root with pointer flags stripped.
func (r Root) Flatten() Record {
	rec := make(Record, len(r))
	for k, f := range r {
		rec[k] = f.Type
	}
	return rec
}

// PointerFields returns the sorted names of pointer-marked fields.
func (r Root) PointerFields() []string {
	var names []string
	for k, f := range r {
		if f.Pointer {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}

func formatFields[V any](m map[string]V, f func(V) string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var buf strings.Builder
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(f(m[k]))
	}
	buf.WriteByte('}')
	return buf.String()
}

// Classify assigns a kind to a raw schema value: a primitive token string,
// an array of schema values, a map of field names to schema values, a map of
// field names to {type, pointer} pairs, or an already-built Node.
func Classify(raw any) (Kind, error) {
	return classify("", raw)
}

func classify(path string, raw any) (Kind, error) {
	switch r := raw.(type) {
	case Node:
		if r == nil {
			break
		}
		return r.Kind(), nil
	case []any:
		var prims, others int
		for _, el := range r {
			if isRawPrimitive(el) {
				prims++
			} else {
				others++
			}
		}
		switch {
		case prims > 0 && others > 0:
			return KindMultiArray, nil
		case others > 0:
			return KindSubArray, nil
		default:
			return KindPrimitiveArray, nil
		}
	case []string:
		return KindPrimitiveArray, nil
	case string:
		if _, ok := parseToken(r); ok {
			return KindPrimitive, nil
		}
	case map[string]Field:
		return KindRoot, nil
	case map[string]any:
		for _, v := range r {
			if _, ok := rawField(v); !ok {
				return KindSub, nil
			}
		}
		return KindRoot, nil
	}
	return 0, schemaErrf(path, raw, "unrecognized schema shape")
}

func isRawPrimitive(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float64, Primitive:
		return true
	default:
		return false
	}
}

// rawField recognizes a {type, pointer} pair.
func rawField(v any) (Field, bool) {
	switch v := v.(type) {
	case Field:
		return v, true
	case map[string]any:
		if len(v) != 2 {
			return Field{}, false
		}
		typ, ok := v["type"]
		if !ok || typ == nil {
			return Field{}, false
		}
		ptr, ok := v["pointer"].(bool)
		if !ok {
			return Field{}, false
		}
		return Field{Type: rawNode{typ}, Pointer: ptr}, true
	default:
		return Field{}, false
	}
}

// rawNode carries an unparsed type of a {type, pointer} pair.
type rawNode struct {
	raw any
}

func (n rawNode) Kind() Kind {
	k, _ := Classify(n.raw)
	return k
}

func (n rawNode) String() string { return loggableAny(n.raw) }

// ParseSchema builds a schema tree from a raw definition, e.g. one decoded
// from JSON or YAML.
func ParseSchema(raw any) (Node, error) {
	return parseNode("", raw, true)
}

// MustParseSchema is like ParseSchema but panics on error.
func MustParseSchema(raw any) Node {
	return must(ParseSchema(raw))
}

func parseNode(path string, raw any, top bool) (Node, error) {
	switch r := raw.(type) {
	case rawNode:
		return parseNode(path, r.raw, top)
	case Root:
		if !top {
			return nil, schemaErrf(path, raw, "pointer fields are only allowed at the top level")
		}
		return r, nil
	case Node:
		if r != nil {
			return r, nil
		}
	}

	kind, err := classify(path, raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindPrimitive:
		p, _ := parseToken(raw.(string))
		return p, nil
	case KindPrimitiveArray, KindSubArray, KindMultiArray:
		els := rawElements(raw)
		arr := make(Array, len(els))
		for i, el := range els {
			n, err := parseNode(indexPath(path, i), el, false)
			if err != nil {
				return nil, err
			}
			arr[i] = n
		}
		return arr, nil
	case KindSub:
		m := raw.(map[string]any)
		rec := make(Record, len(m))
		for k, v := range m {
			n, err := parseNode(fieldPath(path, k), v, false)
			if err != nil {
				return nil, err
			}
			rec[k] = n
		}
		return rec, nil
	case KindRoot:
		fields := rawFields(raw)
		if !top {
			if len(fields) == 0 {
				return Record{}, nil
			}
			return nil, schemaErrf(path, raw, "pointer fields are only allowed at the top level")
		}
		root := make(Root, len(fields))
		for k, f := range fields {
			if f.Type == nil {
				return nil, schemaErrf(fieldPath(path, k), nil, "missing field type")
			}
			n, err := parseNode(fieldPath(path, k), f.Type, false)
			if err != nil {
				return nil, err
			}
			root[k] = Field{Type: n, Pointer: f.Pointer}
		}
		return root, nil
	}
	panic(fmt.Errorf("unhandled kind %v", kind))
}

func rawElements(raw any) []any {
	switch r := raw.(type) {
	case []any:
		return r
	case []string:
		els := make([]any, len(r))
		for i, s := range r {
			els[i] = s
		}
		return els
	default:
		panic(fmt.Errorf("not an array: %T", raw))
	}
}

func rawFields(raw any) map[string]Field {
	switch r := raw.(type) {
	case map[string]Field:
		return r
	case map[string]any:
		fields := make(map[string]Field, len(r))
		for k, v := range r {
			fields[k], _ = rawField(v)
		}
		return fields
	default:
		panic(fmt.Errorf("not a root schema: %T", raw))
	}
}

func fieldPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
