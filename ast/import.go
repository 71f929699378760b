package ast

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// ImportMode selects how fetched content is interpreted.
type ImportMode int

const (
	// Code parses the fetched text as an expression.
	Code ImportMode = iota
	// RawText wraps the fetched text in a text literal verbatim.
	RawText
)

// FilePrefix anchors a local path.
type FilePrefix int

const (
	// Absolute paths start at the filesystem root.
	Absolute FilePrefix = iota
	// Here paths are relative to the importing expression.
	Here
	// Home paths are relative to the user's home directory.
	Home
	// Parent paths begin with ".."; they are not composed with the
	// importing expression and resolve against the working directory.
	Parent
)

func (p FilePrefix) String() string {
	switch p {
	case Absolute:
		return ""
	case Here:
		return "."
	case Home:
		return "~"
	case Parent:
		return ".."
	}
	return "?"
}

// Directory is an ordered sequence of path components, outermost first.
type Directory struct {
	Components []string
}

func (d Directory) String() string {
	var b strings.Builder
	for _, c := range d.Components {
		b.WriteByte('/')
		b.WriteString(c)
	}
	return b.String()
}

// Fetchable is an import locator: where to obtain the imported content.
type Fetchable interface {
	String() string
	fetchable()
}

// LocalFile locates a file on the local filesystem.
type LocalFile struct {
	Prefix FilePrefix
	Dir    Directory
	File   string
}

func (l LocalFile) String() string {
	return l.Prefix.String() + l.Dir.String() + "/" + l.File
}

// RemoteFile locates content behind an http or https URL. Headers, when
// non-nil, is itself an import that must resolve to a value of type
// List { header : Text, value : Text }.
type RemoteFile struct {
	Scheme    string
	Authority string
	Dir       Directory
	File      string
	Query     string
	Fragment  string
	Headers   *Import
}

func (r RemoteFile) String() string {
	s := r.Scheme + "://" + r.Authority + r.Dir.String() + "/" + r.File
	if r.Query != "" {
		s += "?" + r.Query
	}
	if r.Fragment != "" {
		s += "#" + r.Fragment
	}
	if r.Headers != nil {
		s += " using " + r.Headers.String()
	}
	return s
}

// URL renders the locator as a fetchable URL, without the headers clause.
func (r RemoteFile) URL() string {
	u := url.URL{
		Scheme:   r.Scheme,
		Host:     r.Authority,
		Path:     r.Dir.String() + "/" + r.File,
		RawQuery: r.Query,
		Fragment: r.Fragment,
	}
	return u.String()
}

// EnvVar locates content in a process environment variable.
type EnvVar struct {
	Name string
}

func (e EnvVar) String() string { return "env:" + e.Name }

// Missing is the locator that always fails to fetch. Combined with the ?
// operator it expresses "no default".
type Missing struct{}

func (Missing) String() string { return "missing" }

func (LocalFile) fetchable()  {}
func (RemoteFile) fetchable() {}
func (EnvVar) fetchable()     {}
func (Missing) fetchable()    {}

// Import is an expression leaf referencing an external expression: a
// locator, an optional expected SHA-256 digest, and an interpretation mode.
type Import struct {
	Hash      []byte // nil, or the expected 32-byte SHA-256 digest
	Fetchable Fetchable
	Mode      ImportMode
}

func (i Import) String() string {
	s := i.Fetchable.String()
	if i.Hash != nil {
		s += " sha256:" + hex.EncodeToString(i.Hash)
	}
	if i.Mode == RawText {
		s += " as Text"
	}
	return s
}

func (Import) exprNode() {}

// Local reports whether the import can only be satisfied from the local
// machine. Remote imports are the only non-local kind.
func (i Import) Local() bool {
	_, remote := i.Fetchable.(RemoteFile)
	return !remote
}

// MakeRemote parses a URL string into a RemoteFile locator. Only http and
// https schemes are accepted.
func MakeRemote(u *url.URL) (RemoteFile, error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return RemoteFile{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	components := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	file := components[len(components)-1]
	dir := components[:len(components)-1]
	return RemoteFile{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Dir:       Directory{Components: dir},
		File:      file,
		Query:     u.RawQuery,
		Fragment:  u.Fragment,
	}, nil
}
