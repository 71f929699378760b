package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/parser"
)

func mustImport(t *testing.T, src string) ast.Import {
	t.Helper()
	expr, err := parser.Parse(src)
	require.NoError(t, err)
	imp, ok := expr.(ast.Import)
	require.True(t, ok, "%q is not an import", src)
	return imp
}

func dir(components ...string) ast.Directory {
	return ast.Directory{Components: components}
}

func TestCanonicalizeDirectory(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"plain", []string{"a", "b"}, []string{"a", "b"}},
		{"dot dropped", []string{".", "a"}, []string{"a"}},
		{"inner dots dropped", []string{"a", ".", "b", "."}, []string{"a", "b"}},
		{"dotdot cancels", []string{"a", "..", "b"}, []string{"b"}},
		{"dotdot cancels all", []string{"a", ".."}, nil},
		{"leading dotdot survives", []string{"..", "a"}, []string{"..", "a"}},
		{"dotdot run survives", []string{"..", ".."}, []string{"..", ".."}},
		{"mixed", []string{"a", "b", "..", "..", "..", "c"}, []string{"..", "c"}},
		{"dot then dotdot", []string{".", "..", "a", ".."}, []string{".."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalizeDirectory(dir(tt.in...))
			assert.Equal(t, tt.want, got.Components)
		})
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	inputs := [][]string{
		nil,
		{"a", "b", "c"},
		{".", ".", "."},
		{"..", "..", "a", "..", "b", "."},
		{"a", "..", "..", "b", ".", ".."},
	}
	for _, in := range inputs {
		once := CanonicalizeDirectory(dir(in...))
		twice := CanonicalizeDirectory(once)
		assert.Equal(t, once, twice, "input %v", in)
	}
}

func TestCanonicalizeImport(t *testing.T) {
	imp := mustImport(t, "./a/./b/../c/pkg")
	canon := CanonicalizeImport(imp)
	local := canon.Fetchable.(ast.LocalFile)
	assert.Equal(t, []string{"a", "c"}, local.Dir.Components)
	assert.Equal(t, "pkg", local.File)
	// Hash and mode are untouched.
	hashed := mustImport(t, "./a/../pkg sha256:"+testDigest+" as Text")
	canonHashed := CanonicalizeImport(hashed)
	assert.Equal(t, hashed.Hash, canonHashed.Hash)
	assert.Equal(t, ast.RawText, canonHashed.Mode)

	// Env and missing pass through untouched.
	env := mustImport(t, "env:HOME")
	assert.Equal(t, env, CanonicalizeImport(env))
	miss := mustImport(t, "missing")
	assert.Equal(t, miss, CanonicalizeImport(miss))
}

const testDigest = "cc4a93f07cba90d17a1eb4310846f9dcc49993ae9d086a8f953baa952b84bb76"

func TestChainHereOntoLocalParent(t *testing.T) {
	parent := mustImport(t, "/ws/pkg/main")
	child := mustImport(t, "./lib/util")
	here := Chain(parent, child)
	local := here.Fetchable.(ast.LocalFile)
	assert.Equal(t, ast.Absolute, local.Prefix)
	assert.Equal(t, []string{"ws", "pkg", "lib"}, local.Dir.Components)
	assert.Equal(t, "util", local.File)
}

func TestChainHereOntoRemoteParent(t *testing.T) {
	parent := mustImport(t, "https://example.com/pkg/main?tag=1")
	child := mustImport(t, "./util")
	here := Chain(parent, child)
	remote := here.Fetchable.(ast.RemoteFile)
	assert.Equal(t, "https", remote.Scheme)
	assert.Equal(t, "example.com", remote.Authority)
	assert.Equal(t, []string{"pkg"}, remote.Dir.Components)
	assert.Equal(t, "util", remote.File)
	assert.Empty(t, remote.Query, "the parent's query is not inherited")
}

func TestChainCarriesRemoteHeaders(t *testing.T) {
	parent := mustImport(t, "https://example.com/pkg/main using ./headers")
	child := mustImport(t, "./util")
	here := Chain(parent, child)
	remote := here.Fetchable.(ast.RemoteFile)
	require.NotNil(t, remote.Headers)
	assert.Equal(t, "./headers", remote.Headers.String())
}

func TestChainIndependentChildren(t *testing.T) {
	parent := mustImport(t, "/ws/pkg/main")
	for _, src := range []string{"/etc/config", "~/conf", "../sibling", "env:HOME", "missing", "https://example.com/x"} {
		child := mustImport(t, src)
		assert.Equal(t, child, Chain(parent, child), "child %q must ignore its parent", src)
	}
}

func TestChainPreservesChildHashAndMode(t *testing.T) {
	parent := mustImport(t, "/ws/main")
	child := mustImport(t, "./pkg sha256:"+testDigest+" as Text")
	here := Chain(parent, child)
	assert.Equal(t, child.Hash, here.Hash)
	assert.Equal(t, ast.RawText, here.Mode)
}

func TestCompose(t *testing.T) {
	stack := []ast.Import{
		mustImport(t, "/ws/main"),
		mustImport(t, "./a/b"),
		mustImport(t, "../c"),
	}
	// ../c is not CWD-relative, so it stands alone.
	assert.Equal(t, "../c", Compose(stack).String())

	stack = []ast.Import{
		mustImport(t, "/ws/main"),
		mustImport(t, "./lib/x"),
		mustImport(t, "./y"),
	}
	assert.Equal(t, "/ws/lib/y", Compose(stack).String())
}

func TestCanonicalizeAll(t *testing.T) {
	stack := []ast.Import{
		mustImport(t, "/ws/main"),
		mustImport(t, "./pkg/a"),
		mustImport(t, "./b"),
	}
	all := CanonicalizeAll(stack)
	require.Len(t, all, 3)
	assert.Equal(t, "/ws/main", all[0].String())
	assert.Equal(t, "/ws/pkg/a", all[1].String())
	assert.Equal(t, "/ws/pkg/b", all[2].String())
}

func TestSameNameDifferentParents(t *testing.T) {
	// ./a imported from two different parents must compose to two
	// different identities; cycle detection depends on this.
	child := mustImport(t, "./a")
	p1 := mustImport(t, "/ws/x/main")
	p2 := mustImport(t, "/ws/y/main")
	assert.NotEqual(t,
		Compose([]ast.Import{p1, child}).String(),
		Compose([]ast.Import{p2, child}).String())
}
