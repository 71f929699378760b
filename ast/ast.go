// Package ast defines the expression tree for the Dhall configuration
// language. Expressions are pure values: the only node the import machinery
// inspects structurally is the Import leaf, and the only operator with
// non-standard resolution semantics is OpImportAlt.
package ast

import (
	"fmt"
	"sort"
	"strings"
)

// Expr is implemented by every expression node.
type Expr interface {
	String() string
	exprNode()
}

// Const is a type-system constant.
type Const int

const (
	Type Const = iota
	Kind
)

func (c Const) String() string {
	if c == Kind {
		return "Kind"
	}
	return "Type"
}

// Builtin is a built-in type name.
type Builtin int

const (
	Bool Builtin = iota
	Integer
	Text
	List
)

func (b Builtin) String() string {
	switch b {
	case Bool:
		return "Bool"
	case Integer:
		return "Integer"
	case Text:
		return "Text"
	case List:
		return "List"
	}
	return fmt.Sprintf("Builtin(%d)", int(b))
}

// Var is a (possibly shadowed) variable reference. Index counts how many
// same-named binders to skip outward; x@0 prints as plain x.
type Var struct {
	Name  string
	Index int
}

func (v Var) String() string {
	if v.Index == 0 {
		return v.Name
	}
	return fmt.Sprintf("%s@%d", v.Name, v.Index)
}

// Lambda is an anonymous function λ(x : T) → body.
type Lambda struct {
	Label string
	Type  Expr
	Body  Expr
}

func (l Lambda) String() string {
	return fmt.Sprintf("λ(%s : %s) → %s", l.Label, l.Type, l.Body)
}

// Pi is a function type ∀(x : A) → B. Non-dependent arrows use "_" as the
// label and print as A → B.
type Pi struct {
	Label    string
	Domain   Expr
	Codomain Expr
}

func (p Pi) String() string {
	if p.Label == "_" {
		return fmt.Sprintf("%s → %s", p.Domain, p.Codomain)
	}
	return fmt.Sprintf("∀(%s : %s) → %s", p.Label, p.Domain, p.Codomain)
}

// App is function application.
type App struct {
	Fn  Expr
	Arg Expr
}

func (a App) String() string {
	fn := a.Fn.String()
	switch a.Fn.(type) {
	case Lambda, Pi, Let, Op, Annot:
		fn = "(" + fn + ")"
	}
	arg := a.Arg.String()
	switch a.Arg.(type) {
	case App, Lambda, Pi, Let, Op, Annot:
		arg = "(" + arg + ")"
	}
	return fmt.Sprintf("%s %s", fn, arg)
}

// Let is a single let binding.
type Let struct {
	Label string
	Annot Expr // optional, may be nil
	Value Expr
	Body  Expr
}

func (l Let) String() string {
	if l.Annot != nil {
		return fmt.Sprintf("let %s : %s = %s in %s", l.Label, l.Annot, l.Value, l.Body)
	}
	return fmt.Sprintf("let %s = %s in %s", l.Label, l.Value, l.Body)
}

// Annot is a type annotation e : T.
type Annot struct {
	Expr Expr
	Type Expr
}

func (a Annot) String() string {
	return fmt.Sprintf("%s : %s", a.Expr, a.Type)
}

// BoolLit is True or False.
type BoolLit bool

func (b BoolLit) String() string {
	if b {
		return "True"
	}
	return "False"
}

// IntegerLit is an integer literal.
type IntegerLit int64

func (i IntegerLit) String() string {
	return fmt.Sprintf("%d", int64(i))
}

// TextLit is a text literal. The contents are held verbatim; escaping only
// happens when printing.
type TextLit string

func (t TextLit) String() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range string(t) {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ListLit is a list literal, with an optional element type annotation
// (required when the literal is empty).
type ListLit struct {
	Type  Expr // may be nil
	Elems []Expr
}

func (l ListLit) String() string {
	elems := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		elems[i] = e.String()
	}
	s := "[" + strings.Join(elems, ", ") + "]"
	if l.Type != nil {
		s += " : List " + l.Type.String()
	}
	return s
}

// RecordType is a record type { x : T, … }.
type RecordType struct {
	Fields map[string]Expr
}

func (r RecordType) String() string { return formatRecord(r.Fields, ":") }

// RecordLit is a record literal { x = e, … }.
type RecordLit struct {
	Fields map[string]Expr
}

func (r RecordLit) String() string { return formatRecord(r.Fields, "=") }

// Field is record selection r.label.
type Field struct {
	Record Expr
	Label  string
}

func (f Field) String() string {
	return fmt.Sprintf("%s.%s", f.Record, f.Label)
}

// OpKind identifies a binary operator.
type OpKind int

const (
	OpBoolEq OpKind = iota
	OpBoolNe
	OpBoolAnd
	OpBoolOr
	OpTextAppend
	OpImportAlt
)

var opSymbols = map[OpKind]string{
	OpBoolEq:     "==",
	OpBoolNe:     "!=",
	OpBoolAnd:    "&&",
	OpBoolOr:     "||",
	OpTextAppend: "++",
	OpImportAlt:  "?",
}

// Op is a binary operator application.
type Op struct {
	Kind OpKind
	L    Expr
	R    Expr
}

func (o Op) String() string {
	return fmt.Sprintf("%s %s %s", o.L, opSymbols[o.Kind], o.R)
}

func (Const) exprNode()      {}
func (Builtin) exprNode()    {}
func (Var) exprNode()        {}
func (Lambda) exprNode()     {}
func (Pi) exprNode()         {}
func (App) exprNode()        {}
func (Let) exprNode()        {}
func (Annot) exprNode()      {}
func (BoolLit) exprNode()    {}
func (IntegerLit) exprNode() {}
func (TextLit) exprNode()    {}
func (ListLit) exprNode()    {}
func (RecordType) exprNode() {}
func (RecordLit) exprNode()  {}
func (Field) exprNode()      {}
func (Op) exprNode()         {}

// SortedLabels returns a record's field labels in lexicographic order.
// Printing, encoding and type-checking all walk records in this order so
// that equal records render and hash identically.
func SortedLabels(fields map[string]Expr) []string {
	labels := make([]string, 0, len(fields))
	for l := range fields {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func formatRecord(fields map[string]Expr, sep string) string {
	if len(fields) == 0 {
		if sep == ":" {
			return "{}"
		}
		return "{=}"
	}
	parts := make([]string, 0, len(fields))
	for _, l := range SortedLabels(fields) {
		parts = append(parts, fmt.Sprintf("%s %s %s", l, sep, fields[l]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}
