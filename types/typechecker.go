// Package types implements the Dhall type checker.
package types

import (
	"fmt"
	"reflect"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/eval"
)

// TypeError reports a type-checking failure.
type TypeError struct {
	Message string
	Expr    ast.Expr
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: %s", e.Message)
}

func typeError(expr ast.Expr, format string, args ...interface{}) error {
	return &TypeError{Message: fmt.Sprintf(format, args...), Expr: expr}
}

// TypeOf infers the type of expr under ctx. A nil ctx means the empty
// context. Expressions containing import leaves cannot be type-checked.
func TypeOf(ctx *Context, expr ast.Expr) (ast.Expr, error) {
	if ctx == nil {
		ctx = NewContext()
	}
	return typeWith(ctx, expr)
}

func typeWith(ctx *Context, expr ast.Expr) (ast.Expr, error) {
	switch t := expr.(type) {
	case ast.Const:
		if t == ast.Type {
			return ast.Kind, nil
		}
		return nil, typeError(t, "Kind has no type")
	case ast.Builtin:
		switch t {
		case ast.Bool, ast.Integer, ast.Text:
			return ast.Type, nil
		case ast.List:
			return ast.Pi{Label: "_", Domain: ast.Type, Codomain: ast.Type}, nil
		}
		return nil, typeError(t, "unknown builtin")
	case ast.Var:
		if ty, ok := ctx.Lookup(t.Name, t.Index); ok {
			return ty, nil
		}
		return nil, typeError(t, "unbound variable %s", t)
	case ast.Lambda:
		if _, err := typeWith(ctx, t.Type); err != nil {
			return nil, err
		}
		domain := eval.Normalize(t.Type)
		bodyType, err := typeWith(ctx.Insert(t.Label, domain), t.Body)
		if err != nil {
			return nil, err
		}
		piType := ast.Pi{Label: t.Label, Domain: t.Type, Codomain: bodyType}
		if _, err := typeWith(ctx, piType); err != nil {
			return nil, err
		}
		return piType, nil
	case ast.Pi:
		domainUniverse, err := typeWith(ctx, t.Domain)
		if err != nil {
			return nil, err
		}
		if _, ok := eval.Normalize(domainUniverse).(ast.Const); !ok {
			return nil, typeError(t, "function input %s is not a type", t.Domain)
		}
		codomainCtx := ctx.Insert(t.Label, eval.Normalize(t.Domain))
		codomainUniverse, err := typeWith(codomainCtx, t.Codomain)
		if err != nil {
			return nil, err
		}
		universe, ok := eval.Normalize(codomainUniverse).(ast.Const)
		if !ok {
			return nil, typeError(t, "function output %s is not a type", t.Codomain)
		}
		return universe, nil
	case ast.App:
		fnType, err := typeWith(ctx, t.Fn)
		if err != nil {
			return nil, err
		}
		pi, ok := eval.Normalize(fnType).(ast.Pi)
		if !ok {
			return nil, typeError(t, "cannot apply a non-function of type %s", fnType)
		}
		argType, err := typeWith(ctx, t.Arg)
		if err != nil {
			return nil, err
		}
		if !Equivalent(pi.Domain, argType) {
			return nil, typeError(t, "function expects %s but received %s", pi.Domain, argType)
		}
		shifted := eval.Shift(1, pi.Label, 0, t.Arg)
		result := eval.Subst(pi.Label, 0, shifted, pi.Codomain)
		return eval.Shift(-1, pi.Label, 0, result), nil
	case ast.Let:
		valueType, err := typeWith(ctx, t.Value)
		if err != nil {
			return nil, err
		}
		if t.Annot != nil && !Equivalent(t.Annot, valueType) {
			return nil, typeError(t, "let annotation %s does not match inferred type %s", t.Annot, valueType)
		}
		shifted := eval.Shift(1, t.Label, 0, t.Value)
		body := eval.Subst(t.Label, 0, shifted, t.Body)
		body = eval.Shift(-1, t.Label, 0, body)
		return typeWith(ctx, body)
	case ast.Annot:
		if _, err := typeWith(ctx, t.Type); err != nil {
			return nil, err
		}
		actual, err := typeWith(ctx, t.Expr)
		if err != nil {
			return nil, err
		}
		if !Equivalent(t.Type, actual) {
			return nil, typeError(t, "annotation %s does not match inferred type %s", t.Type, actual)
		}
		return t.Type, nil
	case ast.BoolLit:
		return ast.Bool, nil
	case ast.IntegerLit:
		return ast.Integer, nil
	case ast.TextLit:
		return ast.Text, nil
	case ast.ListLit:
		return typeOfList(ctx, t)
	case ast.RecordType:
		for _, label := range ast.SortedLabels(t.Fields) {
			universe, err := typeWith(ctx, t.Fields[label])
			if err != nil {
				return nil, err
			}
			if _, ok := eval.Normalize(universe).(ast.Const); !ok {
				return nil, typeError(t, "record field %s is not a type", label)
			}
		}
		return ast.Type, nil
	case ast.RecordLit:
		fields := make(map[string]ast.Expr, len(t.Fields))
		for _, label := range ast.SortedLabels(t.Fields) {
			fieldType, err := typeWith(ctx, t.Fields[label])
			if err != nil {
				return nil, err
			}
			fields[label] = fieldType
		}
		return ast.RecordType{Fields: fields}, nil
	case ast.Field:
		recordType, err := typeWith(ctx, t.Record)
		if err != nil {
			return nil, err
		}
		record, ok := eval.Normalize(recordType).(ast.RecordType)
		if !ok {
			return nil, typeError(t, "cannot select %s from a non-record of type %s", t.Label, recordType)
		}
		fieldType, ok := record.Fields[t.Label]
		if !ok {
			return nil, typeError(t, "record has no field %s", t.Label)
		}
		return fieldType, nil
	case ast.Op:
		return typeOfOp(ctx, t)
	case ast.Import:
		return nil, typeError(t, "cannot type-check unresolved import %s", t)
	}
	return nil, typeError(expr, "unhandled expression %T", expr)
}

func typeOfList(ctx *Context, lst ast.ListLit) (ast.Expr, error) {
	elemType := lst.Type
	if elemType != nil {
		universe, err := typeWith(ctx, elemType)
		if err != nil {
			return nil, err
		}
		if eval.Normalize(universe) != ast.Expr(ast.Type) {
			return nil, typeError(lst, "list element annotation %s is not a type", elemType)
		}
	}
	for _, elem := range lst.Elems {
		t, err := typeWith(ctx, elem)
		if err != nil {
			return nil, err
		}
		if elemType == nil {
			elemType = t
			continue
		}
		if !Equivalent(elemType, t) {
			return nil, typeError(lst, "list elements have mismatched types %s and %s", elemType, t)
		}
	}
	if elemType == nil {
		return nil, typeError(lst, "empty list needs a type annotation")
	}
	return ast.App{Fn: ast.List, Arg: elemType}, nil
}

func typeOfOp(ctx *Context, op ast.Op) (ast.Expr, error) {
	lType, err := typeWith(ctx, op.L)
	if err != nil {
		return nil, err
	}
	rType, err := typeWith(ctx, op.R)
	if err != nil {
		return nil, err
	}
	switch op.Kind {
	case ast.OpBoolEq, ast.OpBoolNe, ast.OpBoolAnd, ast.OpBoolOr:
		if !Equivalent(lType, ast.Bool) || !Equivalent(rType, ast.Bool) {
			return nil, typeError(op, "boolean operator requires Bool operands, found %s and %s", lType, rType)
		}
		return ast.Bool, nil
	case ast.OpTextAppend:
		if !Equivalent(lType, ast.Text) || !Equivalent(rType, ast.Text) {
			return nil, typeError(op, "++ requires Text operands")
		}
		return ast.Text, nil
	case ast.OpImportAlt:
		if !Equivalent(lType, rType) {
			return nil, typeError(op, "alternatives have mismatched types %s and %s", lType, rType)
		}
		return lType, nil
	}
	return nil, typeError(op, "unknown operator")
}

// Equivalent reports judgmental equality: α-equivalence of β-normal forms.
func Equivalent(a, b ast.Expr) bool {
	na := eval.AlphaNormalize(eval.Normalize(a))
	nb := eval.AlphaNormalize(eval.Normalize(b))
	return reflect.DeepEqual(na, nb)
}
