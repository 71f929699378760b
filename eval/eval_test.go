package eval

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/parser"
)

func mustParse(t *testing.T, src string) ast.Expr {
	t.Helper()
	expr, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return expr
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`(λ(a : Type) → λ(x : a) → x) Bool True`, `True`},
		{`(λ(x : Bool) → x == False) True`, `False`},
		{`let x = 1 in x`, `1`},
		{`True && False`, `False`},
		{`True && x`, `x`},
		{`x && True`, `x`},
		{`False && x`, `False`},
		{`True || x`, `True`},
		{`x || False`, `x`},
		{`True == x`, `x`},
		{`x != False`, `x`},
		{`"a" ++ "b"`, `"ab"`},
		{`"" ++ x`, `x`},
		{`{ a = (λ(x : Bool) → x) True }.a`, `True`},
		{`(1 : Integer)`, `1`},
		{`[(λ(x : Bool) → x) True]`, `[True]`},
	}
	for _, tt := range tests {
		got := Normalize(mustParse(t, tt.input)).String()
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		`(λ(a : Type) → λ(x : a) → x) Bool True`,
		`λ(x : Bool) → x == False`,
		`{ a = let y = "Hi" in y, b = [True, False] }`,
	}
	for _, input := range inputs {
		once := Normalize(mustParse(t, input))
		twice := Normalize(once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("Normalize not idempotent for %q:\n%s", input, diff)
		}
	}
}

func TestNormalizeWithCustomRules(t *testing.T) {
	// A custom rule that rewrites the free variable magic to an integer.
	custom := func(e ast.Expr) (ast.Expr, bool) {
		if v, ok := e.(ast.Var); ok && v.Name == "magic" {
			return ast.IntegerLit(42), true
		}
		return nil, false
	}
	got := NormalizeWith(custom, mustParse(t, `{ x = magic }`))
	want := ast.RecordLit{Fields: map[string]ast.Expr{"x": ast.IntegerLit(42)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("custom normalization produced %s", got)
	}
}

func TestAlphaNormalize(t *testing.T) {
	a := AlphaNormalize(mustParse(t, `λ(x : Bool) → x == False`))
	b := AlphaNormalize(mustParse(t, `λ(y : Bool) → y == False`))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("alpha-equivalent lambdas disagree:\n%s", diff)
	}
	if a.String() != `λ(_ : Bool) → _ == False` {
		t.Errorf("unexpected alpha normal form %s", a)
	}
}

func TestAlphaNormalizeNested(t *testing.T) {
	a := AlphaNormalize(mustParse(t, `λ(a : Type) → λ(x : a) → x`))
	b := AlphaNormalize(mustParse(t, `λ(t : Type) → λ(v : t) → v`))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("alpha-equivalent lambdas disagree:\n%s", diff)
	}
	// The inner binder shadows the outer one; references pick the right
	// level through indices.
	want := ast.Lambda{
		Label: "_",
		Type:  ast.Type,
		Body: ast.Lambda{
			Label: "_",
			Type:  ast.Var{Name: "_", Index: 0},
			Body:  ast.Var{Name: "_", Index: 0},
		},
	}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("unexpected alpha normal form:\n%s", diff)
	}
}

func TestShift(t *testing.T) {
	// shift(1, x, 0, x) = x@1
	got := Shift(1, "x", 0, ast.Var{Name: "x"})
	if !reflect.DeepEqual(got, ast.Var{Name: "x", Index: 1}) {
		t.Errorf("unexpected shift result %s", got)
	}
	// Bound occurrences below the cutoff stay put.
	lam := mustParse(t, `λ(x : Bool) → x`)
	if diff := cmp.Diff(lam, Shift(1, "x", 0, lam)); diff != "" {
		t.Errorf("bound occurrence shifted:\n%s", diff)
	}
}

func TestSubstAvoidsCapture(t *testing.T) {
	// Substituting y := x into λ(x : Bool) → y must not capture: the
	// substituted x refers outside the binder, so its index bumps.
	body := mustParse(t, `λ(x : Bool) → y`)
	got := Subst("y", 0, ast.Var{Name: "x"}, body)
	want := ast.Lambda{
		Label: "x",
		Type:  ast.Bool,
		Body:  ast.Var{Name: "x", Index: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("capture-avoiding substitution failed:\n%s", diff)
	}
}

func TestNormalizeShadowing(t *testing.T) {
	// (λ(x : Bool) → λ(x : Bool) → x@1) True  ⇒  λ(x : Bool) → True
	expr := ast.App{
		Fn: ast.Lambda{
			Label: "x",
			Type:  ast.Bool,
			Body: ast.Lambda{
				Label: "x",
				Type:  ast.Bool,
				Body:  ast.Var{Name: "x", Index: 1},
			},
		},
		Arg: ast.BoolLit(true),
	}
	want := ast.Lambda{Label: "x", Type: ast.Bool, Body: ast.BoolLit(true)}
	got := Normalize(expr)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("shadowed reduction failed:\n%s", diff)
	}
}
