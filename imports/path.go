package imports

import (
	"github.com/clavoie-takt/dhall/ast"
)

// CanonicalizeDirectory normalizes a directory's components: "." components
// vanish, a ".." cancels the nearest real component before it, and leading
// ".." runs survive. The result is a fixed point of further
// canonicalization.
func CanonicalizeDirectory(d ast.Directory) ast.Directory {
	var out []string
	for _, c := range d.Components {
		switch c {
		case ".":
		case "..":
			if n := len(out); n > 0 && out[n-1] != ".." {
				out = out[:n-1]
			} else {
				out = append(out, "..")
			}
		default:
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return ast.Directory{}
	}
	return ast.Directory{Components: out}
}

// CanonicalizeImport normalizes an import's locator. Local directories and
// remote paths are canonicalized; env, missing, hash and mode are left
// untouched.
func CanonicalizeImport(imp ast.Import) ast.Import {
	switch f := imp.Fetchable.(type) {
	case ast.LocalFile:
		f.Dir = CanonicalizeDirectory(f.Dir)
		imp.Fetchable = f
	case ast.RemoteFile:
		f.Dir = CanonicalizeDirectory(f.Dir)
		imp.Fetchable = f
	}
	return imp
}

// Chain resolves a child import against its parent's locator, yielding the
// child's absolute identity. Only CWD-relative (Here) children compose;
// every other child stands on its own.
func Chain(parent, child ast.Import) ast.Import {
	local, ok := child.Fetchable.(ast.LocalFile)
	if !ok || local.Prefix != ast.Here {
		return child
	}
	switch p := parent.Fetchable.(type) {
	case ast.LocalFile:
		child.Fetchable = ast.LocalFile{
			Prefix: p.Prefix,
			Dir:    joinDirs(p.Dir, local.Dir),
			File:   local.File,
		}
	case ast.RemoteFile:
		child.Fetchable = ast.RemoteFile{
			Scheme:    p.Scheme,
			Authority: p.Authority,
			Dir:       joinDirs(p.Dir, local.Dir),
			File:      local.File,
			Headers:   p.Headers,
		}
	}
	return child
}

// Compose folds a non-empty stack of raw imports, outermost first, into the
// canonical identity of the innermost one.
func Compose(stack []ast.Import) ast.Import {
	here := stack[0]
	for _, child := range stack[1:] {
		here = Chain(here, child)
	}
	return CanonicalizeImport(here)
}

// CanonicalizeAll returns the composed canonical identity at every depth of
// the stack: element i is the identity of stack[i] resolved through all of
// its ancestors. Cycle detection compares the candidate identity against
// these.
func CanonicalizeAll(stack []ast.Import) []ast.Import {
	out := make([]ast.Import, len(stack))
	for i := range stack {
		out[i] = Compose(stack[: i+1 : i+1])
	}
	return out
}

func joinDirs(parent, child ast.Directory) ast.Directory {
	components := make([]string, 0, len(parent.Components)+len(child.Components))
	components = append(components, parent.Components...)
	components = append(components, child.Components...)
	return ast.Directory{Components: components}
}
