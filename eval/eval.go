// Package eval implements normalization of Dhall expressions: substitution,
// β-reduction with optional user-supplied reduction rules, and
// α-normalization for hash stability.
package eval

import (
	"github.com/clavoie-takt/dhall/ast"
)

// Normalizer is a user-supplied reduction rule consulted at every node
// before structural reduction. It returns a replacement expression and true
// to rewrite, or false to leave the node to the standard rules.
type Normalizer func(ast.Expr) (ast.Expr, bool)

// Shift adjusts the indices of free variables named name by d, leaving
// variables with index below cutoff alone. It is the standard
// capture-avoidance shift.
func Shift(d int, name string, cutoff int, e ast.Expr) ast.Expr {
	switch t := e.(type) {
	case ast.Var:
		if t.Name == name && t.Index >= cutoff {
			return ast.Var{Name: t.Name, Index: t.Index + d}
		}
		return t
	case ast.Lambda:
		bodyCutoff := cutoff
		if t.Label == name {
			bodyCutoff++
		}
		return ast.Lambda{
			Label: t.Label,
			Type:  Shift(d, name, cutoff, t.Type),
			Body:  Shift(d, name, bodyCutoff, t.Body),
		}
	case ast.Pi:
		bodyCutoff := cutoff
		if t.Label == name {
			bodyCutoff++
		}
		return ast.Pi{
			Label:    t.Label,
			Domain:   Shift(d, name, cutoff, t.Domain),
			Codomain: Shift(d, name, bodyCutoff, t.Codomain),
		}
	case ast.Let:
		bodyCutoff := cutoff
		if t.Label == name {
			bodyCutoff++
		}
		var annot ast.Expr
		if t.Annot != nil {
			annot = Shift(d, name, cutoff, t.Annot)
		}
		return ast.Let{
			Label: t.Label,
			Annot: annot,
			Value: Shift(d, name, cutoff, t.Value),
			Body:  Shift(d, name, bodyCutoff, t.Body),
		}
	default:
		return mapSubExprs(e, func(sub ast.Expr) ast.Expr {
			return Shift(d, name, cutoff, sub)
		})
	}
}

// Subst replaces occurrences of Var{name, index} with val.
func Subst(name string, index int, val, e ast.Expr) ast.Expr {
	switch t := e.(type) {
	case ast.Var:
		if t.Name == name && t.Index == index {
			return val
		}
		return t
	case ast.Lambda:
		bodyIndex := index
		if t.Label == name {
			bodyIndex++
		}
		return ast.Lambda{
			Label: t.Label,
			Type:  Subst(name, index, val, t.Type),
			Body:  Subst(name, bodyIndex, Shift(1, t.Label, 0, val), t.Body),
		}
	case ast.Pi:
		bodyIndex := index
		if t.Label == name {
			bodyIndex++
		}
		return ast.Pi{
			Label:    t.Label,
			Domain:   Subst(name, index, val, t.Domain),
			Codomain: Subst(name, bodyIndex, Shift(1, t.Label, 0, val), t.Codomain),
		}
	case ast.Let:
		bodyIndex := index
		if t.Label == name {
			bodyIndex++
		}
		var annot ast.Expr
		if t.Annot != nil {
			annot = Subst(name, index, val, t.Annot)
		}
		return ast.Let{
			Label: t.Label,
			Annot: annot,
			Value: Subst(name, index, val, t.Value),
			Body:  Subst(name, bodyIndex, Shift(1, t.Label, 0, val), t.Body),
		}
	default:
		return mapSubExprs(e, func(sub ast.Expr) ast.Expr {
			return Subst(name, index, val, sub)
		})
	}
}

// Normalize β-normalizes an expression using only the standard rules.
func Normalize(e ast.Expr) ast.Expr {
	return NormalizeWith(nil, e)
}

// NormalizeWith β-normalizes an expression, consulting custom (which may be
// nil) at every node before the standard rules apply.
func NormalizeWith(custom Normalizer, e ast.Expr) ast.Expr {
	if custom != nil {
		if replacement, ok := custom(e); ok {
			return NormalizeWith(custom, replacement)
		}
	}

	switch t := e.(type) {
	case ast.App:
		fn := NormalizeWith(custom, t.Fn)
		arg := NormalizeWith(custom, t.Arg)
		if lam, ok := fn.(ast.Lambda); ok {
			// Standard β-reduction with capture avoidance.
			shifted := Shift(1, lam.Label, 0, arg)
			body := Subst(lam.Label, 0, shifted, lam.Body)
			body = Shift(-1, lam.Label, 0, body)
			return NormalizeWith(custom, body)
		}
		return ast.App{Fn: fn, Arg: arg}
	case ast.Let:
		shifted := Shift(1, t.Label, 0, t.Value)
		body := Subst(t.Label, 0, shifted, t.Body)
		body = Shift(-1, t.Label, 0, body)
		return NormalizeWith(custom, body)
	case ast.Annot:
		return NormalizeWith(custom, t.Expr)
	case ast.Op:
		return normalizeOp(custom, t)
	case ast.Field:
		record := NormalizeWith(custom, t.Record)
		if lit, ok := record.(ast.RecordLit); ok {
			if v, ok := lit.Fields[t.Label]; ok {
				return NormalizeWith(custom, v)
			}
		}
		return ast.Field{Record: record, Label: t.Label}
	default:
		return mapSubExprs(e, func(sub ast.Expr) ast.Expr {
			return NormalizeWith(custom, sub)
		})
	}
}

func normalizeOp(custom Normalizer, op ast.Op) ast.Expr {
	l := NormalizeWith(custom, op.L)
	r := NormalizeWith(custom, op.R)

	switch op.Kind {
	case ast.OpImportAlt:
		// In a resolved tree the left alternative succeeded.
		return l
	case ast.OpBoolAnd:
		if lb, ok := l.(ast.BoolLit); ok {
			if lb {
				return r
			}
			return ast.BoolLit(false)
		}
		if rb, ok := r.(ast.BoolLit); ok {
			if rb {
				return l
			}
			return ast.BoolLit(false)
		}
	case ast.OpBoolOr:
		if lb, ok := l.(ast.BoolLit); ok {
			if lb {
				return ast.BoolLit(true)
			}
			return r
		}
		if rb, ok := r.(ast.BoolLit); ok {
			if rb {
				return ast.BoolLit(true)
			}
			return l
		}
	case ast.OpBoolEq:
		if lb, ok := l.(ast.BoolLit); ok && bool(lb) {
			return r
		}
		if rb, ok := r.(ast.BoolLit); ok && bool(rb) {
			return l
		}
	case ast.OpBoolNe:
		if lb, ok := l.(ast.BoolLit); ok && !bool(lb) {
			return r
		}
		if rb, ok := r.(ast.BoolLit); ok && !bool(rb) {
			return l
		}
	case ast.OpTextAppend:
		lt, lok := l.(ast.TextLit)
		rt, rok := r.(ast.TextLit)
		switch {
		case lok && rok:
			return lt + rt
		case lok && lt == "":
			return r
		case rok && rt == "":
			return l
		}
	}
	return ast.Op{Kind: op.Kind, L: l, R: r}
}

// AlphaNormalize renames every bound variable to "_", so that expressions
// differing only in binder names encode to the same bytes.
func AlphaNormalize(e ast.Expr) ast.Expr {
	switch t := e.(type) {
	case ast.Lambda:
		return ast.Lambda{
			Label: "_",
			Type:  AlphaNormalize(t.Type),
			Body:  AlphaNormalize(alphaRename(t.Label, t.Body)),
		}
	case ast.Pi:
		return ast.Pi{
			Label:    "_",
			Domain:   AlphaNormalize(t.Domain),
			Codomain: AlphaNormalize(alphaRename(t.Label, t.Codomain)),
		}
	case ast.Let:
		var annot ast.Expr
		if t.Annot != nil {
			annot = AlphaNormalize(t.Annot)
		}
		return ast.Let{
			Label: "_",
			Annot: annot,
			Value: AlphaNormalize(t.Value),
			Body:  AlphaNormalize(alphaRename(t.Label, t.Body)),
		}
	default:
		return mapSubExprs(e, AlphaNormalize)
	}
}

// alphaRename rewrites references to the bound variable label into "_"
// within a binder's body.
func alphaRename(label string, body ast.Expr) ast.Expr {
	if label == "_" {
		return body
	}
	body = Shift(1, "_", 0, body)
	body = Subst(label, 0, ast.Var{Name: "_"}, body)
	return Shift(-1, label, 0, body)
}

// mapSubExprs rebuilds a node applying f to each immediate sub-expression
// in left-to-right declaration order. Leaves are returned unchanged.
func mapSubExprs(e ast.Expr, f func(ast.Expr) ast.Expr) ast.Expr {
	switch t := e.(type) {
	case ast.App:
		return ast.App{Fn: f(t.Fn), Arg: f(t.Arg)}
	case ast.Lambda:
		return ast.Lambda{Label: t.Label, Type: f(t.Type), Body: f(t.Body)}
	case ast.Pi:
		return ast.Pi{Label: t.Label, Domain: f(t.Domain), Codomain: f(t.Codomain)}
	case ast.Let:
		var annot ast.Expr
		if t.Annot != nil {
			annot = f(t.Annot)
		}
		return ast.Let{Label: t.Label, Annot: annot, Value: f(t.Value), Body: f(t.Body)}
	case ast.Annot:
		return ast.Annot{Expr: f(t.Expr), Type: f(t.Type)}
	case ast.ListLit:
		var ty ast.Expr
		if t.Type != nil {
			ty = f(t.Type)
		}
		var elems []ast.Expr
		if len(t.Elems) > 0 {
			elems = make([]ast.Expr, len(t.Elems))
			for i, el := range t.Elems {
				elems[i] = f(el)
			}
		}
		return ast.ListLit{Type: ty, Elems: elems}
	case ast.RecordType:
		fields := make(map[string]ast.Expr, len(t.Fields))
		for _, l := range ast.SortedLabels(t.Fields) {
			fields[l] = f(t.Fields[l])
		}
		return ast.RecordType{Fields: fields}
	case ast.RecordLit:
		fields := make(map[string]ast.Expr, len(t.Fields))
		for _, l := range ast.SortedLabels(t.Fields) {
			fields[l] = f(t.Fields[l])
		}
		return ast.RecordLit{Fields: fields}
	case ast.Field:
		return ast.Field{Record: f(t.Record), Label: t.Label}
	case ast.Op:
		return ast.Op{Kind: t.Kind, L: f(t.L), R: f(t.R)}
	default:
		// Const, Builtin, Var, BoolLit, IntegerLit, TextLit, Import.
		return e
	}
}
