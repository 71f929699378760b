//go:build nonet

package imports

import (
	"context"

	"github.com/clavoie-takt/dhall/ast"
)

// fetchRemote under the nonet build tag: HTTP support is compiled out and
// every remote import fails.
func fetchRemote(_ context.Context, _ *Status, f ast.RemoteFile) (string, string, error) {
	return "", "", missing1(&CannotImportHTTPURL{URL: f.URL()})
}
