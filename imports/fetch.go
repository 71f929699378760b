package imports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/eval"
	"github.com/clavoie-takt/dhall/types"
)

// FetchImport is the default Fetcher. It dispatches on the locator kind and
// returns the display path and fetched text. Every failure is wrapped in
// the MissingImports envelope so the ? operator can catch it uniformly; the
// missing locator contributes an empty envelope.
func FetchImport(ctx context.Context, status *Status, imp ast.Import) (string, string, error) {
	switch f := imp.Fetchable.(type) {
	case ast.LocalFile:
		return fetchLocal(f)
	case ast.RemoteFile:
		return fetchRemote(ctx, status, f)
	case ast.EnvVar:
		if value, ok := os.LookupEnv(f.Name); ok {
			return f.String(), value, nil
		}
		return "", "", missing1(&MissingEnvironmentVariable{Name: f.Name})
	case ast.Missing:
		return "", "", &MissingImports{}
	}
	return "", "", missing1(fmt.Errorf("unknown locator %T", imp.Fetchable))
}

func fetchLocal(f ast.LocalFile) (string, string, error) {
	path := localPath(f)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", missing1(&MissingFile{Path: path})
		}
		return "", "", missing1(fmt.Errorf("cannot read %s: %w", path, err))
	}
	return path, string(data), nil
}

// localPath renders a local locator as a filesystem path for the current
// process: Here and Parent resolve against the working directory, Home
// against the user's home.
func localPath(f ast.LocalFile) string {
	parts := append([]string{}, f.Dir.Components...)
	parts = append(parts, f.File)
	rel := filepath.Join(parts...)
	switch f.Prefix {
	case ast.Absolute:
		return "/" + rel
	case ast.Home:
		home, err := os.UserHomeDir()
		if err != nil {
			home = "~"
		}
		return filepath.Join(home, rel)
	case ast.Parent:
		return filepath.Join("..", rel)
	default:
		return rel
	}
}

// headersImportType is the type a using clause must resolve to.
var headersImportType ast.Expr = ast.App{
	Fn: ast.List,
	Arg: ast.RecordType{Fields: map[string]ast.Expr{
		"header": ast.Text,
		"value":  ast.Text,
	}},
}

// requestHeaders produces the headers for a remote fetch: the resolved
// using clause when present, otherwise any configured per-origin defaults.
// The headers import resolves against the current stack, i.e. against the
// remote import's parent, so a local headers file next to the importing
// expression stays reachable.
func requestHeaders(ctx context.Context, status *Status, f ast.RemoteFile) ([]HTTPHeader, error) {
	if f.Headers == nil {
		return status.OriginHeaders[f.Authority], nil
	}

	resolved, err := loadExpr(ctx, status, *f.Headers)
	if err != nil {
		return nil, err
	}
	resolved = eval.NormalizeWith(status.Normalizer, resolved)

	actual, err := types.TypeOf(status.Context, resolved)
	if err != nil {
		return nil, missing1(err)
	}
	if !types.Equivalent(actual, headersImportType) {
		return nil, missing1(fmt.Errorf(
			"headers import has type %s, expected %s", actual, headersImportType))
	}

	list, ok := resolved.(ast.ListLit)
	if !ok {
		return nil, missing1(fmt.Errorf("headers import did not normalize to a list literal"))
	}
	headers := make([]HTTPHeader, 0, len(list.Elems))
	for _, elem := range list.Elems {
		record, ok := elem.(ast.RecordLit)
		if !ok {
			return nil, missing1(fmt.Errorf("headers import did not normalize to ground records"))
		}
		name, nok := record.Fields["header"].(ast.TextLit)
		value, vok := record.Fields["value"].(ast.TextLit)
		if !nok || !vok {
			return nil, missing1(fmt.Errorf("headers import did not normalize to ground records"))
		}
		headers = append(headers, HTTPHeader{Name: string(name), Value: string(value)})
	}
	return headers, nil
}

// missing1 is the one-deep MissingImports envelope every individual
// failure is first raised in.
func missing1(err error) error {
	return &MissingImports{Errors: []error{err}}
}
