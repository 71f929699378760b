// Package imports resolves the import leaves of a Dhall expression:
// canonicalization of import paths, fetching, cycle and referential
// opacity checks, in-memory memoization, and the content-addressed
// integrity cache for hashed imports.
package imports

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/eval"
	"github.com/clavoie-takt/dhall/parser"
	"github.com/clavoie-takt/dhall/types"
)

// Load resolves every import in expr, using the process working directory
// as the starting directory.
func Load(expr ast.Expr) (ast.Expr, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadWith(context.Background(), EmptyStatus(cwd), expr)
}

// LoadWith resolves every import in expr within an existing session,
// for embedders that want to share the memo, typing context or fetcher
// across several loads.
func LoadWith(ctx context.Context, status *Status, expr ast.Expr) (ast.Expr, error) {
	resolved, err := loadExpr(ctx, status, expr)
	if err != nil {
		// A one-element aggregate is unwrapped at the boundary: the
		// envelope only exists for the ? operator.
		if m, ok := err.(*MissingImports); ok && len(m.Errors) == 1 {
			return nil, m.Errors[0]
		}
		return nil, err
	}
	return resolved, nil
}

// loadExpr is the structural traversal. Import leaves and the alternative
// operator have bespoke semantics; every other node recurses into its
// children left-to-right and is reassembled.
func loadExpr(ctx context.Context, status *Status, expr ast.Expr) (ast.Expr, error) {
	switch t := expr.(type) {
	case ast.Import:
		return loadImport(ctx, status, t)
	case ast.Op:
		if t.Kind == ast.OpImportAlt {
			return loadAlternative(ctx, status, t)
		}
		l, err := loadExpr(ctx, status, t.L)
		if err != nil {
			return nil, err
		}
		r, err := loadExpr(ctx, status, t.R)
		if err != nil {
			return nil, err
		}
		return ast.Op{Kind: t.Kind, L: l, R: r}, nil
	case ast.App:
		fn, err := loadExpr(ctx, status, t.Fn)
		if err != nil {
			return nil, err
		}
		arg, err := loadExpr(ctx, status, t.Arg)
		if err != nil {
			return nil, err
		}
		return ast.App{Fn: fn, Arg: arg}, nil
	case ast.Lambda:
		ty, err := loadExpr(ctx, status, t.Type)
		if err != nil {
			return nil, err
		}
		body, err := loadExpr(ctx, status, t.Body)
		if err != nil {
			return nil, err
		}
		return ast.Lambda{Label: t.Label, Type: ty, Body: body}, nil
	case ast.Pi:
		domain, err := loadExpr(ctx, status, t.Domain)
		if err != nil {
			return nil, err
		}
		codomain, err := loadExpr(ctx, status, t.Codomain)
		if err != nil {
			return nil, err
		}
		return ast.Pi{Label: t.Label, Domain: domain, Codomain: codomain}, nil
	case ast.Let:
		var annot ast.Expr
		var err error
		if t.Annot != nil {
			if annot, err = loadExpr(ctx, status, t.Annot); err != nil {
				return nil, err
			}
		}
		value, err := loadExpr(ctx, status, t.Value)
		if err != nil {
			return nil, err
		}
		body, err := loadExpr(ctx, status, t.Body)
		if err != nil {
			return nil, err
		}
		return ast.Let{Label: t.Label, Annot: annot, Value: value, Body: body}, nil
	case ast.Annot:
		inner, err := loadExpr(ctx, status, t.Expr)
		if err != nil {
			return nil, err
		}
		ty, err := loadExpr(ctx, status, t.Type)
		if err != nil {
			return nil, err
		}
		return ast.Annot{Expr: inner, Type: ty}, nil
	case ast.ListLit:
		var ty ast.Expr
		var err error
		if t.Type != nil {
			if ty, err = loadExpr(ctx, status, t.Type); err != nil {
				return nil, err
			}
		}
		elems := make([]ast.Expr, len(t.Elems))
		for i, elem := range t.Elems {
			if elems[i], err = loadExpr(ctx, status, elem); err != nil {
				return nil, err
			}
		}
		if len(elems) == 0 {
			elems = nil
		}
		return ast.ListLit{Type: ty, Elems: elems}, nil
	case ast.RecordType:
		fields, err := loadRecord(ctx, status, t.Fields)
		if err != nil {
			return nil, err
		}
		return ast.RecordType{Fields: fields}, nil
	case ast.RecordLit:
		fields, err := loadRecord(ctx, status, t.Fields)
		if err != nil {
			return nil, err
		}
		return ast.RecordLit{Fields: fields}, nil
	case ast.Field:
		record, err := loadExpr(ctx, status, t.Record)
		if err != nil {
			return nil, err
		}
		return ast.Field{Record: record, Label: t.Label}, nil
	default:
		// Leaves: constants, builtins, variables, literals.
		return expr, nil
	}
}

func loadRecord(ctx context.Context, status *Status, fields map[string]ast.Expr) (map[string]ast.Expr, error) {
	out := make(map[string]ast.Expr, len(fields))
	for _, label := range ast.SortedLabels(fields) {
		resolved, err := loadExpr(ctx, status, fields[label])
		if err != nil {
			return nil, err
		}
		out[label] = resolved
	}
	return out, nil
}

// loadAlternative implements a ? b: the sole recovery point for the
// MissingImports envelope. Any other failure propagates immediately.
func loadAlternative(ctx context.Context, status *Status, alt ast.Op) (ast.Expr, error) {
	l, lerr := loadExpr(ctx, status, alt.L)
	if lerr == nil {
		return l, nil
	}
	lmissing, ok := lerr.(*MissingImports)
	if !ok {
		return nil, lerr
	}
	r, rerr := loadExpr(ctx, status, alt.R)
	if rerr == nil {
		return r, nil
	}
	rmissing, ok := rerr.(*MissingImports)
	if !ok {
		return nil, rerr
	}
	merged := make([]error, 0, len(lmissing.Errors)+len(rmissing.Errors))
	merged = append(merged, lmissing.Errors...)
	merged = append(merged, rmissing.Errors...)
	return nil, &MissingImports{Errors: merged}
}

// loadImport resolves a single import leaf against the session.
func loadImport(ctx context.Context, status *Status, imp ast.Import) (ast.Expr, error) {
	parent := Compose(status.Stack)

	pushed := make([]ast.Import, len(status.Stack)+1)
	copy(pushed, status.Stack)
	pushed[len(status.Stack)] = imp
	here := Compose(pushed)

	fail := func(err error) (ast.Expr, error) {
		return nil, wrapFailure(pushed, err)
	}

	// Referential opacity: a local import reachable only from this machine
	// must not be pulled in by a remote expression.
	if here.Local() && !parent.Local() {
		return fail(&ReferentiallyOpaque{Import: imp})
	}

	// Cycle detection compares the composed identity at every ancestor
	// depth against the candidate.
	key := here.String()
	for _, ancestor := range CanonicalizeAll(status.Stack) {
		if ancestor.String() == key {
			return fail(&Cycle{Import: imp})
		}
	}

	// In-memory memo. Hashed imports still verify their digest.
	if cached, ok := status.Cache[key]; ok {
		if imp.Hash != nil {
			if err := verifyHash(status, imp.Hash, cached); err != nil {
				return fail(err)
			}
		}
		return cached, nil
	}

	dynamic, fromDisk, err := exprFromImport(ctx, status, here)
	if err != nil {
		return fail(err)
	}
	if fromDisk {
		// Bytes were verified against the digest and were written after
		// type-checking; the decoded expression is fully resolved.
		status.Cache[key] = dynamic
		return dynamic, nil
	}

	// Recurse with the import pushed; the stack is restored on every exit
	// path, including panics, so later cycle checks stay sound.
	resolved, err := func() (ast.Expr, error) {
		saved := status.Stack
		status.Stack = pushed
		defer func() { status.Stack = saved }()
		return loadExpr(ctx, status, dynamic)
	}()
	if err != nil {
		return fail(err)
	}

	if _, err := types.TypeOf(status.Context, resolved); err != nil {
		return fail(err)
	}
	normalized := eval.NormalizeWith(status.Normalizer, resolved)
	status.Cache[key] = normalized

	if imp.Hash != nil {
		encoded, err := encodeForCache(status, normalized)
		if err != nil {
			return fail(err)
		}
		actual := sha256.Sum256(encoded)
		if !bytes.Equal(actual[:], imp.Hash) {
			return fail(&HashMismatch{Expected: imp.Hash, Actual: actual[:]})
		}
		saveToCache(status, imp.Hash, normalized, encoded)
	}
	return normalized, nil
}

// ExprFromImport fetches and parses a single import without resolving its
// own imports: the base layer underneath the resolver. Hashed imports are
// served from the integrity cache when possible.
func ExprFromImport(ctx context.Context, status *Status, imp ast.Import) (ast.Expr, error) {
	expr, _, err := exprFromImport(ctx, status, imp)
	return expr, err
}

// exprFromImport additionally reports whether the expression came from the
// integrity cache, in which case it is already resolved and normalized.
func exprFromImport(ctx context.Context, status *Status, imp ast.Import) (ast.Expr, bool, error) {
	if imp.Hash != nil {
		expr, hit, err := fetchFromCache(status, imp.Hash)
		if err != nil {
			return nil, false, err
		}
		if hit {
			return expr, true, nil
		}
	}

	display, text, err := status.Fetcher(ctx, status, imp)
	if err != nil {
		return nil, false, err
	}

	if imp.Mode == ast.RawText {
		return ast.TextLit(text), false, nil
	}
	parsed, err := parser.Parse(text)
	if err != nil {
		return nil, false, &ParseFailure{Path: display, Err: err}
	}
	return parsed, false, nil
}

// verifyHash recomputes the canonical digest of a resolved expression and
// compares it against the expected one.
func verifyHash(status *Status, hash []byte, expr ast.Expr) error {
	encoded, err := encodeForCache(status, expr)
	if err != nil {
		return err
	}
	actual := sha256.Sum256(encoded)
	if !bytes.Equal(actual[:], hash) {
		return &HashMismatch{Expected: hash, Actual: actual[:]}
	}
	return nil
}
