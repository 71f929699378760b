package imports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/binary"
	"github.com/clavoie-takt/dhall/eval"
	"github.com/clavoie-takt/dhall/types"
)

// cacheSubdir is the directory under the user cache root holding encoded
// expressions, one file per digest.
const cacheSubdir = "dhall"

// cachePath returns the integrity cache file for a digest, creating the
// directory tree as needed. Cached expressions may embed secrets (an env
// var folded into a hashed artifact), so every created directory is
// owner-only, and an existing ancestor that is not owner-accessible makes
// the whole cache unavailable rather than risking a shared location.
func cachePath(status *Status, hash []byte) (string, error) {
	root := status.CacheDir
	if root == "" {
		root = xdg.CacheHome
	}
	dir := filepath.Join(root, cacheSubdir)
	if err := ensureCacheDirectory(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, hex.EncodeToString(hash)), nil
}

// ensureCacheDirectory walks upward until it finds an existing ancestor,
// then creates the missing directories back down with owner-only
// permissions.
func ensureCacheDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("cache path %s is not a directory", dir)
		}
		if info.Mode().Perm()&0o700 != 0o700 {
			return fmt.Errorf("cache directory %s is not owner-accessible", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return fmt.Errorf("cannot create cache root %s", dir)
	}
	if err := ensureCacheDirectory(parent); err != nil {
		return err
	}
	return os.Mkdir(dir, 0o700)
}

// fetchFromCache probes the integrity cache for a digest. It returns the
// decoded expression on a read hit, hit=false on a miss, and an error when
// the file exists but fails verification or decoding. An unavailable cache
// (unreachable or not owner-accessible directory) counts as a miss so resolution
// falls through to a fresh fetch.
func fetchFromCache(status *Status, hash []byte) (ast.Expr, bool, error) {
	path, err := cachePath(status, hash)
	if err != nil {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, nil
	}
	actual := sha256.Sum256(data)
	if !bytes.Equal(actual[:], hash) {
		return nil, false, &HashMismatch{Expected: hash, Actual: actual[:]}
	}
	expr, err := binary.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", path, err)
	}
	return expr, true, nil
}

// saveToCache persists an already hash-verified encoding of a resolved
// expression. The expression is re-checked first and the write silently
// skipped if it fails to type-check; a racing writer is tolerated because
// the file is renamed into place only once complete.
func saveToCache(status *Status, hash []byte, expr ast.Expr, encoded []byte) {
	if _, err := types.TypeOf(status.Context, expr); err != nil {
		return
	}
	path, err := cachePath(status, hash)
	if err != nil {
		return
	}
	writeFileAtomic(path, encoded)
}

// writeFileAtomic writes data through a temporary file in the target
// directory that is swapped in place with a rename, so concurrent readers
// never observe a partial file.
func writeFileAtomic(path string, data []byte) {
	dir := filepath.Dir(path)
	temporary, err := os.CreateTemp(dir, ".dhall-cache-write-*")
	if err != nil {
		return
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return
	}
	if err := os.Chmod(temporary.Name(), 0o600); err != nil {
		os.Remove(temporary.Name())
		return
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		os.Remove(temporary.Name())
	}
}

// encodeForCache produces the canonical bytes of a resolved expression that
// the caller has already β-normalized: α-normalization, then the session's
// binary encoding.
func encodeForCache(status *Status, expr ast.Expr) ([]byte, error) {
	return binary.Encode(status.Version, eval.AlphaNormalize(expr))
}
