package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/clavoie-takt/dhall/imports"
)

// originHeaderEntry is one header in the per-origin configuration file.
type originHeaderEntry struct {
	Header string `yaml:"header"`
	Value  string `yaml:"value"`
}

// loadOriginHeaders reads the optional per-origin header configuration at
// <config-dir>/dhall/headers.yaml, mapping an authority to the headers
// sent with remote imports of that origin that carry no explicit using
// clause. A missing file is not an error.
func loadOriginHeaders() (map[string][]imports.HTTPHeader, error) {
	path := filepath.Join(xdg.ConfigHome, "dhall", "headers.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var raw map[string][]originHeaderEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}

	headers := make(map[string][]imports.HTTPHeader, len(raw))
	for authority, entries := range raw {
		converted := make([]imports.HTTPHeader, len(entries))
		for i, e := range entries {
			converted[i] = imports.HTTPHeader{Name: e.Header, Value: e.Value}
		}
		headers[authority] = converted
	}
	return headers, nil
}
