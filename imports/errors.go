package imports

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/clavoie-takt/dhall/ast"
)

// MissingFile reports a local import whose file does not exist.
type MissingFile struct {
	Path string
}

func (e *MissingFile) Error() string {
	return fmt.Sprintf("missing file %s", e.Path)
}

// MissingEnvironmentVariable reports an env import whose variable is unset.
type MissingEnvironmentVariable struct {
	Name string
}

func (e *MissingEnvironmentVariable) Error() string {
	return fmt.Sprintf("missing environment variable %s", e.Name)
}

// CannotImportHTTPURL reports a remote import attempted without HTTP
// support.
type CannotImportHTTPURL struct {
	URL string
}

func (e *CannotImportHTTPURL) Error() string {
	return fmt.Sprintf("cannot import %s: HTTP support is disabled", e.URL)
}

// FailedDownload reports a remote fetch that did not yield a 2xx response.
type FailedDownload struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FailedDownload) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to download %s: HTTP status %d", e.URL, e.StatusCode)
}

func (e *FailedDownload) Unwrap() error { return e.Err }

// Cycle reports an import that transitively imports itself.
type Cycle struct {
	Import ast.Import
}

func (e *Cycle) Error() string {
	return fmt.Sprintf("cyclic import: %s", e.Import)
}

// ReferentiallyOpaque reports a local import referenced from a non-local
// one. A remote expression may not depend on anything only the local
// machine can see.
type ReferentiallyOpaque struct {
	Import ast.Import
}

func (e *ReferentiallyOpaque) Error() string {
	return fmt.Sprintf("referentially opaque import: %s", e.Import)
}

// HashMismatch reports an integrity check failure.
type HashMismatch struct {
	Expected []byte
	Actual   []byte
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("hash mismatch: expected sha256:%s but got sha256:%s",
		hex.EncodeToString(e.Expected), hex.EncodeToString(e.Actual))
}

// ParseFailure frames a parse error with the display path it came from.
type ParseFailure struct {
	Path string
	Err  error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// Imported wraps a failure with the chain of enclosing imports at the
// moment it was raised, innermost last.
type Imported struct {
	Chain []ast.Import
	Err   error
}

func (e *Imported) Error() string {
	if len(e.Chain) <= 1 {
		return e.Err.Error()
	}
	var b strings.Builder
	for _, imp := range e.Chain[1:] {
		fmt.Fprintf(&b, "%s\n", imp)
	}
	fmt.Fprintf(&b, "%v", e.Err)
	return b.String()
}

func (e *Imported) Unwrap() error { return e.Err }

// MissingImports aggregates the failures of one or more imports. It is the
// only error the ? operator recovers from; an empty aggregate comes from
// the missing locator.
type MissingImports struct {
	Errors []error
}

func (e *MissingImports) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no import alternatives left"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("failed alternatives:\n%s", strings.Join(msgs, "\n"))
}

func (e *MissingImports) Unwrap() []error { return e.Errors }

// wrapFailure translates err into the MissingImports envelope carrying the
// import chain, per the resolver's wrapping policy: an empty aggregate is
// passed through untouched so the ? operator can keep searching, a
// non-empty one has each element wrapped, and anything else becomes a
// one-element aggregate.
func wrapFailure(chain []ast.Import, err error) error {
	if m, ok := err.(*MissingImports); ok {
		if len(m.Errors) == 0 {
			return m
		}
		wrapped := make([]error, len(m.Errors))
		for i, inner := range m.Errors {
			wrapped[i] = imported(chain, inner)
		}
		return &MissingImports{Errors: wrapped}
	}
	return &MissingImports{Errors: []error{imported(chain, err)}}
}

// imported attaches the chain unless the failure already carries one.
func imported(chain []ast.Import, err error) error {
	if _, ok := err.(*Imported); ok {
		return err
	}
	return &Imported{Chain: chain, Err: err}
}
