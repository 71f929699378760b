// Package binary implements the canonical binary encoding of Dhall
// expressions. Expressions are lowered to a tagged intermediate form and
// serialized as canonical CBOR, so that semantically equal expressions
// produce byte-equal encodings suitable for hashing and on-disk caching.
package binary

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/clavoie-takt/dhall/ast"
)

// ProtocolVersion selects the binary encoding variant.
type ProtocolVersion int

const (
	// V4 is the legacy encoding: the term is wrapped in a ["4.0.0", term]
	// pair. Kept for decoding caches written by older releases.
	V4 ProtocolVersion = iota
	// V5 is the current encoding: the bare canonical term.
	V5
)

// DefaultVersion is the protocol version new sessions use.
const DefaultVersion = V5

const v4Label = "4.0.0"

func (v ProtocolVersion) String() string {
	switch v {
	case V4:
		return "4.0.0"
	case V5:
		return "5.0.0"
	}
	return fmt.Sprintf("ProtocolVersion(%d)", int(v))
}

// Node tags of the intermediate form.
const (
	tagApp        = 0
	tagLambda     = 1
	tagPi         = 2
	tagOp         = 3
	tagList       = 4
	tagText       = 5
	tagInteger    = 6
	tagRecordType = 7
	tagRecordLit  = 8
	tagField      = 9
	tagAnnot      = 10
	tagLet        = 11
)

var encMode cbor.EncMode

func init() {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = mode
}

// Encode serializes a fully resolved expression under the given protocol
// version. Encoding an expression that still contains import leaves is an
// error.
func Encode(version ProtocolVersion, expr ast.Expr) ([]byte, error) {
	term, err := toTerm(expr)
	if err != nil {
		return nil, err
	}
	if version == V4 {
		term = []interface{}{v4Label, term}
	}
	data, err := encMode.Marshal(term)
	if err != nil {
		return nil, fmt.Errorf("cbor encoding failed: %w", err)
	}
	return data, nil
}

// Decode deserializes an expression, accepting either protocol version.
func Decode(data []byte) (ast.Expr, error) {
	var term interface{}
	if err := cbor.Unmarshal(data, &term); err != nil {
		return nil, fmt.Errorf("cbor decoding failed: %w", err)
	}
	// Reject trailing garbage.
	if err := checkExact(data); err != nil {
		return nil, err
	}
	if wrapped, ok := term.([]interface{}); ok && len(wrapped) == 2 {
		if label, ok := wrapped[0].(string); ok && label == v4Label {
			return fromTerm(wrapped[1])
		}
	}
	return fromTerm(term)
}

func checkExact(data []byte) error {
	var raw cbor.RawMessage
	rest, err := cbor.UnmarshalFirst(data, &raw)
	if err != nil {
		return fmt.Errorf("cbor decoding failed: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("trailing bytes after encoded expression")
	}
	return nil
}

func toTerm(expr ast.Expr) (interface{}, error) {
	switch t := expr.(type) {
	case ast.Const:
		return t.String(), nil
	case ast.Builtin:
		return t.String(), nil
	case ast.Var:
		if t.Name == "_" {
			return t.Index, nil
		}
		return []interface{}{t.Name, t.Index}, nil
	case ast.Lambda:
		ty, err := toTerm(t.Type)
		if err != nil {
			return nil, err
		}
		body, err := toTerm(t.Body)
		if err != nil {
			return nil, err
		}
		if t.Label == "_" {
			return []interface{}{tagLambda, ty, body}, nil
		}
		return []interface{}{tagLambda, t.Label, ty, body}, nil
	case ast.Pi:
		domain, err := toTerm(t.Domain)
		if err != nil {
			return nil, err
		}
		codomain, err := toTerm(t.Codomain)
		if err != nil {
			return nil, err
		}
		if t.Label == "_" {
			return []interface{}{tagPi, domain, codomain}, nil
		}
		return []interface{}{tagPi, t.Label, domain, codomain}, nil
	case ast.App:
		fn, err := toTerm(t.Fn)
		if err != nil {
			return nil, err
		}
		arg, err := toTerm(t.Arg)
		if err != nil {
			return nil, err
		}
		return []interface{}{tagApp, fn, arg}, nil
	case ast.Let:
		value, err := toTerm(t.Value)
		if err != nil {
			return nil, err
		}
		body, err := toTerm(t.Body)
		if err != nil {
			return nil, err
		}
		var annot interface{}
		if t.Annot != nil {
			if annot, err = toTerm(t.Annot); err != nil {
				return nil, err
			}
		}
		return []interface{}{tagLet, t.Label, annot, value, body}, nil
	case ast.Annot:
		inner, err := toTerm(t.Expr)
		if err != nil {
			return nil, err
		}
		ty, err := toTerm(t.Type)
		if err != nil {
			return nil, err
		}
		return []interface{}{tagAnnot, inner, ty}, nil
	case ast.BoolLit:
		return bool(t), nil
	case ast.IntegerLit:
		return []interface{}{tagInteger, int64(t)}, nil
	case ast.TextLit:
		return []interface{}{tagText, string(t)}, nil
	case ast.ListLit:
		term := []interface{}{tagList}
		if t.Type != nil {
			ty, err := toTerm(t.Type)
			if err != nil {
				return nil, err
			}
			term = append(term, ty)
		} else {
			term = append(term, nil)
		}
		for _, elem := range t.Elems {
			e, err := toTerm(elem)
			if err != nil {
				return nil, err
			}
			term = append(term, e)
		}
		return term, nil
	case ast.RecordType:
		fields, err := recordTerm(t.Fields)
		if err != nil {
			return nil, err
		}
		return []interface{}{tagRecordType, fields}, nil
	case ast.RecordLit:
		fields, err := recordTerm(t.Fields)
		if err != nil {
			return nil, err
		}
		return []interface{}{tagRecordLit, fields}, nil
	case ast.Field:
		record, err := toTerm(t.Record)
		if err != nil {
			return nil, err
		}
		return []interface{}{tagField, record, t.Label}, nil
	case ast.Op:
		l, err := toTerm(t.L)
		if err != nil {
			return nil, err
		}
		r, err := toTerm(t.R)
		if err != nil {
			return nil, err
		}
		return []interface{}{tagOp, int(t.Kind), l, r}, nil
	case ast.Import:
		return nil, fmt.Errorf("cannot encode unresolved import %s", t)
	}
	return nil, fmt.Errorf("cannot encode %T", expr)
}

func recordTerm(fields map[string]ast.Expr) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for _, label := range ast.SortedLabels(fields) {
		term, err := toTerm(fields[label])
		if err != nil {
			return nil, err
		}
		out[label] = term
	}
	return out, nil
}

func fromTerm(term interface{}) (ast.Expr, error) {
	switch t := term.(type) {
	case bool:
		return ast.BoolLit(t), nil
	case uint64:
		return ast.Var{Name: "_", Index: int(t)}, nil
	case int64:
		if t < 0 {
			return nil, fmt.Errorf("negative variable index %d", t)
		}
		return ast.Var{Name: "_", Index: int(t)}, nil
	case string:
		switch t {
		case "Type":
			return ast.Type, nil
		case "Kind":
			return ast.Kind, nil
		case "Bool":
			return ast.Bool, nil
		case "Integer":
			return ast.Integer, nil
		case "Text":
			return ast.Text, nil
		case "List":
			return ast.List, nil
		}
		return nil, fmt.Errorf("unknown builtin %q", t)
	case []interface{}:
		return fromArray(t)
	}
	return nil, fmt.Errorf("unrecognized term %T", term)
}

func fromArray(arr []interface{}) (ast.Expr, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty term array")
	}
	if name, ok := arr[0].(string); ok {
		// Named variable [name, index].
		if len(arr) != 2 {
			return nil, fmt.Errorf("malformed variable term")
		}
		index, err := asInt(arr[1])
		if err != nil {
			return nil, err
		}
		return ast.Var{Name: name, Index: index}, nil
	}
	tag, err := asInt(arr[0])
	if err != nil {
		return nil, fmt.Errorf("malformed term tag: %w", err)
	}
	args := arr[1:]
	switch tag {
	case tagApp:
		return decodePair(args, func(fn, arg ast.Expr) ast.Expr {
			return ast.App{Fn: fn, Arg: arg}
		})
	case tagLambda:
		label, ty, body, err := decodeBinder(args)
		if err != nil {
			return nil, err
		}
		return ast.Lambda{Label: label, Type: ty, Body: body}, nil
	case tagPi:
		label, domain, codomain, err := decodeBinder(args)
		if err != nil {
			return nil, err
		}
		return ast.Pi{Label: label, Domain: domain, Codomain: codomain}, nil
	case tagOp:
		if len(args) != 3 {
			return nil, fmt.Errorf("malformed operator term")
		}
		kind, err := asInt(args[0])
		if err != nil {
			return nil, err
		}
		if kind < int(ast.OpBoolEq) || kind > int(ast.OpImportAlt) {
			return nil, fmt.Errorf("unknown operator code %d", kind)
		}
		l, err := fromTerm(args[1])
		if err != nil {
			return nil, err
		}
		r, err := fromTerm(args[2])
		if err != nil {
			return nil, err
		}
		return ast.Op{Kind: ast.OpKind(kind), L: l, R: r}, nil
	case tagList:
		if len(args) < 1 {
			return nil, fmt.Errorf("malformed list term")
		}
		var ty ast.Expr
		if args[0] != nil {
			if ty, err = fromTerm(args[0]); err != nil {
				return nil, err
			}
		}
		elems := make([]ast.Expr, 0, len(args)-1)
		for _, raw := range args[1:] {
			elem, err := fromTerm(raw)
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
		if len(elems) == 0 {
			return ast.ListLit{Type: ty}, nil
		}
		return ast.ListLit{Type: ty, Elems: elems}, nil
	case tagText:
		if len(args) != 1 {
			return nil, fmt.Errorf("malformed text term")
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("malformed text term")
		}
		return ast.TextLit(s), nil
	case tagInteger:
		if len(args) != 1 {
			return nil, fmt.Errorf("malformed integer term")
		}
		switch n := args[0].(type) {
		case int64:
			return ast.IntegerLit(n), nil
		case uint64:
			return ast.IntegerLit(int64(n)), nil
		}
		return nil, fmt.Errorf("malformed integer term")
	case tagRecordType:
		fields, err := decodeRecord(args)
		if err != nil {
			return nil, err
		}
		return ast.RecordType{Fields: fields}, nil
	case tagRecordLit:
		fields, err := decodeRecord(args)
		if err != nil {
			return nil, err
		}
		return ast.RecordLit{Fields: fields}, nil
	case tagField:
		if len(args) != 2 {
			return nil, fmt.Errorf("malformed selection term")
		}
		record, err := fromTerm(args[0])
		if err != nil {
			return nil, err
		}
		label, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("malformed selection term")
		}
		return ast.Field{Record: record, Label: label}, nil
	case tagAnnot:
		return decodePair(args, func(inner, ty ast.Expr) ast.Expr {
			return ast.Annot{Expr: inner, Type: ty}
		})
	case tagLet:
		if len(args) != 4 {
			return nil, fmt.Errorf("malformed let term")
		}
		label, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("malformed let term")
		}
		var annot ast.Expr
		if args[1] != nil {
			if annot, err = fromTerm(args[1]); err != nil {
				return nil, err
			}
		}
		value, err := fromTerm(args[2])
		if err != nil {
			return nil, err
		}
		body, err := fromTerm(args[3])
		if err != nil {
			return nil, err
		}
		return ast.Let{Label: label, Annot: annot, Value: value, Body: body}, nil
	}
	return nil, fmt.Errorf("unknown term tag %d", tag)
}

func decodePair(args []interface{}, build func(a, b ast.Expr) ast.Expr) (ast.Expr, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("malformed term")
	}
	a, err := fromTerm(args[0])
	if err != nil {
		return nil, err
	}
	b, err := fromTerm(args[1])
	if err != nil {
		return nil, err
	}
	return build(a, b), nil
}

// decodeBinder handles the shared λ/∀ layouts: [tag, type, body] for the
// anonymous label and [tag, label, type, body] otherwise.
func decodeBinder(args []interface{}) (string, ast.Expr, ast.Expr, error) {
	label := "_"
	if len(args) == 3 {
		var ok bool
		if label, ok = args[0].(string); !ok {
			return "", nil, nil, fmt.Errorf("malformed binder label")
		}
		if label == "_" {
			return "", nil, nil, fmt.Errorf("binder label _ must use the short form")
		}
		args = args[1:]
	}
	if len(args) != 2 {
		return "", nil, nil, fmt.Errorf("malformed binder term")
	}
	ty, err := fromTerm(args[0])
	if err != nil {
		return "", nil, nil, err
	}
	body, err := fromTerm(args[1])
	if err != nil {
		return "", nil, nil, err
	}
	return label, ty, body, nil
}

func decodeRecord(args []interface{}) (map[string]ast.Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("malformed record term")
	}
	raw, ok := args[0].(map[interface{}]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed record term")
	}
	fields := make(map[string]ast.Expr, len(raw))
	for k, v := range raw {
		label, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("non-text record label")
		}
		expr, err := fromTerm(v)
		if err != nil {
			return nil, err
		}
		fields[label] = expr
	}
	return fields, nil
}

func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case uint64:
		return int(n), nil
	case int64:
		return int(n), nil
	}
	return 0, fmt.Errorf("expected integer, found %T", v)
}
