//go:build !nonet

package imports

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/text/cases"

	"github.com/clavoie-takt/dhall/ast"
)

func fetchRemote(ctx context.Context, status *Status, f ast.RemoteFile) (string, string, error) {
	url := f.URL()

	headers, err := requestHeaders(ctx, status, f)
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", missing1(&FailedDownload{URL: url, Err: err})
	}
	fold := cases.Fold()
	for _, h := range headers {
		req.Header.Add(fold.String(h.Name), h.Value)
	}

	resp, err := status.client().Do(req)
	if err != nil {
		return "", "", missing1(&FailedDownload{URL: url, Err: err})
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", missing1(&FailedDownload{URL: url, StatusCode: resp.StatusCode})
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", missing1(&FailedDownload{URL: url, Err: err})
	}
	return url, string(body), nil
}
