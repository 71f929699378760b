package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/parser"
)

func mustParse(t *testing.T, src string) ast.Expr {
	t.Helper()
	expr, err := parser.Parse(src)
	require.NoError(t, err)
	return expr
}

var roundTripSources = []string{
	`True`,
	`False`,
	`1`,
	`"Hello\nworld"`,
	`Bool`,
	`Integer`,
	`Text`,
	`Type`,
	`Kind`,
	`λ(x : Bool) → x`,
	`λ(a : Type) → λ(x : a) → x`,
	`∀(x : Bool) → Bool`,
	`Bool → Bool`,
	`let x : Integer = 1 in x`,
	`[1, 2, 3]`,
	`[] : List Text`,
	`{ bar = "Hi", foo = 1 }`,
	`{ header : Text, value : Text }`,
	`{=}`,
	`{ r = { a = 1 } }.r.a`,
	`True && False || True == False != True`,
	`"a" ++ "b"`,
	`1 ? 2`,
}

func TestRoundTrip(t *testing.T) {
	for _, src := range roundTripSources {
		for _, version := range []ProtocolVersion{V4, V5} {
			expr := mustParse(t, src)
			data, err := Encode(version, expr)
			require.NoError(t, err, "encode %q under %s", src, version)
			decoded, err := Decode(data)
			require.NoError(t, err, "decode %q under %s", src, version)
			assert.Equal(t, expr, decoded, "round trip of %q under %s", src, version)
		}
	}
}

func TestEncodingIsVersioned(t *testing.T) {
	expr := mustParse(t, `λ(x : Bool) → x`)
	v4, err := Encode(V4, expr)
	require.NoError(t, err)
	v5, err := Encode(V5, expr)
	require.NoError(t, err)
	assert.NotEqual(t, v4, v5, "protocol versions must encode differently")
}

func TestEncodingIsDeterministic(t *testing.T) {
	expr := mustParse(t, `{ c = 1, a = 2, b = 3 }`)
	first, err := Encode(V5, expr)
	require.NoError(t, err)
	second, err := Encode(V5, expr)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnonymousBinderShortForm(t *testing.T) {
	// A → B and ∀(_ : A) → B are the same term and must share an encoding.
	arrow, err := Encode(V5, mustParse(t, `Bool → Text`))
	require.NoError(t, err)
	pi, err := Encode(V5, ast.Pi{Label: "_", Domain: ast.Bool, Codomain: ast.Text})
	require.NoError(t, err)
	assert.Equal(t, arrow, pi)
}

func TestEncodeRejectsImports(t *testing.T) {
	_, err := Encode(V5, mustParse(t, `./unresolved`))
	assert.Error(t, err)
	_, err = Encode(V5, mustParse(t, `{ x = env:HOME }`))
	assert.Error(t, err)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(V5, mustParse(t, `True`))
	require.NoError(t, err)
	_, err = Decode(append(data, 0x00))
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xfe})
	assert.Error(t, err)
	_, err = Decode(nil)
	assert.Error(t, err)
	// An unknown tag.
	bad, err := encMode.Marshal([]interface{}{99, "x"})
	require.NoError(t, err)
	_, err = Decode(bad)
	assert.Error(t, err)
}

func TestVariableIndexRoundTrip(t *testing.T) {
	expr := ast.Lambda{
		Label: "x",
		Type:  ast.Bool,
		Body: ast.Lambda{
			Label: "x",
			Type:  ast.Bool,
			Body:  ast.Var{Name: "x", Index: 1},
		},
	}
	data, err := Encode(V5, expr)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ast.Expr(expr), decoded)
}
