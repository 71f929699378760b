package imports

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/binary"
	"github.com/clavoie-takt/dhall/eval"
	"github.com/clavoie-takt/dhall/types"
)

// HTTPHeader is one header sent with a remote fetch. Names are folded to
// their case-insensitive form before the request is built.
type HTTPHeader struct {
	Name  string
	Value string
}

// Fetcher turns an import into (display path, source text). The default is
// FetchImport; tests substitute their own.
type Fetcher func(ctx context.Context, status *Status, imp ast.Import) (string, string, error)

// Status is the mutable session state threaded through one resolution.
type Status struct {
	// Stack is the chain of imports being resolved, outermost first. The
	// first element is the synthetic root import for the starting
	// directory; the last is the import currently being resolved.
	Stack []ast.Import

	// Cache memoizes fully resolved, type-checked, normalized expressions
	// keyed by the canonical rendering of their import.
	Cache map[string]ast.Expr

	// Manager is the HTTP client, built lazily on first remote fetch.
	Manager *http.Client

	// Version selects the binary encoding used for hashing and the
	// integrity cache.
	Version binary.ProtocolVersion

	// Normalizer holds user-supplied reduction rules, may be nil.
	Normalizer eval.Normalizer

	// Context is the typing context resolved expressions are checked
	// under, may be nil for the empty context.
	Context *types.Context

	// Fetcher obtains import content; indirected so tests can stub it.
	Fetcher Fetcher

	// OriginHeaders supplies default request headers per authority, used
	// for remote imports that carry no explicit using clause.
	OriginHeaders map[string][]HTTPHeader

	// CacheDir overrides the integrity cache root. Empty means the
	// platform cache directory.
	CacheDir string
}

// EmptyStatus creates a fresh session rooted at the given starting
// directory.
func EmptyStatus(dir string) *Status {
	return &Status{
		Stack:   []ast.Import{rootImport(dir)},
		Cache:   make(map[string]ast.Expr),
		Version: binary.DefaultVersion,
		Fetcher: FetchImport,
	}
}

// client returns the session's HTTP client, creating it on first use.
func (s *Status) client() *http.Client {
	if s.Manager == nil {
		s.Manager = &http.Client{Timeout: 30 * time.Second}
	}
	return s.Manager
}

// rootImport synthesizes the local import the outermost resolution is
// relative to. Its file component is never fetched; only its directory
// takes part in composition.
func rootImport(dir string) ast.Import {
	clean := filepath.ToSlash(filepath.Clean(dir))
	prefix := ast.Here
	switch {
	case strings.HasPrefix(clean, "/"):
		prefix = ast.Absolute
		clean = strings.TrimPrefix(clean, "/")
	case clean == "." || clean == "":
		clean = ""
	}
	var components []string
	if clean != "" {
		components = strings.Split(clean, "/")
	}
	return ast.Import{
		Fetchable: ast.LocalFile{
			Prefix: prefix,
			Dir:    ast.Directory{Components: components},
			File:   ".",
		},
	}
}
