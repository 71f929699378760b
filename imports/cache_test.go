package imports

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/binary"
	"github.com/clavoie-takt/dhall/eval"
)

// hashedSource renders "<path> sha256:<hex>" for a file whose content
// normalizes to expr.
func hashedSource(t *testing.T, path string, expr ast.Expr) string {
	t.Helper()
	code, err := HashExpressionToCode(binary.DefaultVersion, expr)
	require.NoError(t, err)
	return path + " " + code
}

// S6: a hashed import round-trips, populates the on-disk cache, and a
// mutated digest is rejected.
func TestHashedImport(t *testing.T) {
	dir := t.TempDir()
	cacheDir := t.TempDir()
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	normalized := eval.Normalize(mustParse(t, content))

	status := EmptyStatus(dir)
	status.CacheDir = cacheDir
	src := hashedSource(t, "./pkg", normalized)

	resolved := mustLoad(t, status, src)
	assert.Equal(t, normalized, resolved)

	// The integrity cache now holds exactly one entry named by the digest,
	// whose bytes hash to it.
	entries, err := os.ReadDir(filepath.Join(cacheDir, cacheSubdir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(cacheDir, cacheSubdir, entries[0].Name()))
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, entries[0].Name(), hex.EncodeToString(sum[:]))

	// The cached bytes decode to the same expression.
	decoded, err := binary.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, eval.AlphaNormalize(normalized), decoded)
}

func TestHashedImportMutatedDigest(t *testing.T) {
	dir := t.TempDir()
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	src := hashedSource(t, "./pkg", eval.Normalize(mustParse(t, content)))

	// Flip one hex digit of the digest.
	last := src[len(src)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	mutated := src[:len(src)-1] + string(flipped)

	status := EmptyStatus(dir)
	status.CacheDir = t.TempDir()
	_, err := load(t, status, mutated)
	var mismatch *HashMismatch
	require.ErrorAs(t, err, &mismatch)
}

// A second session reads the artifact back from disk without fetching.
func TestHashedImportServedFromDiskCache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := t.TempDir()
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	normalized := eval.Normalize(mustParse(t, content))
	src := hashedSource(t, "./pkg", normalized)

	first := EmptyStatus(dir)
	first.CacheDir = cacheDir
	mustLoad(t, first, src)

	second := EmptyStatus(dir)
	second.CacheDir = cacheDir
	second.Fetcher = func(ctx context.Context, status *Status, imp ast.Import) (string, string, error) {
		t.Fatal("a disk cache hit must not fetch")
		return "", "", nil
	}
	resolved := mustLoad(t, second, src)
	assert.Equal(t, eval.AlphaNormalize(normalized), resolved)
}

// P6: tampered cache bytes are rejected, not silently accepted.
func TestTamperedCacheEntry(t *testing.T) {
	dir := t.TempDir()
	cacheDir := t.TempDir()
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	normalized := eval.Normalize(mustParse(t, content))
	src := hashedSource(t, "./pkg", normalized)

	first := EmptyStatus(dir)
	first.CacheDir = cacheDir
	mustLoad(t, first, src)

	entries, err := os.ReadDir(filepath.Join(cacheDir, cacheSubdir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	victim := filepath.Join(cacheDir, cacheSubdir, entries[0].Name())
	require.NoError(t, os.WriteFile(victim, []byte("tampered"), 0o600))

	second := EmptyStatus(dir)
	second.CacheDir = cacheDir
	_, err = load(t, second, src)
	var mismatch *HashMismatch
	require.ErrorAs(t, err, &mismatch)
}

// An unavailable cache directory falls through to a fresh resolution
// instead of failing.
func TestUnavailableCacheFallsThrough(t *testing.T) {
	dir := t.TempDir()
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	normalized := eval.Normalize(mustParse(t, content))
	src := hashedSource(t, "./pkg", normalized)

	blocked := t.TempDir()
	require.NoError(t, os.Chmod(blocked, 0o500))
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o700) })

	status := EmptyStatus(dir)
	status.CacheDir = blocked
	resolved := mustLoad(t, status, src)
	assert.Equal(t, normalized, resolved)
}

func TestCacheDirectoryPermissions(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(t.TempDir(), "nested", "cache")
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	src := hashedSource(t, "./pkg", eval.Normalize(mustParse(t, content)))

	status := EmptyStatus(dir)
	status.CacheDir = cacheDir
	mustLoad(t, status, src)

	// Every created directory on the way down is owner-only.
	for _, probe := range []string{
		filepath.Join(cacheDir, cacheSubdir),
		cacheDir,
		filepath.Dir(cacheDir),
	} {
		info, err := os.Stat(probe)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm(), "directory %s", probe)
	}
}

func TestEnsureCacheDirectoryRejectsFiles(t *testing.T) {
	base := t.TempDir()
	obstruction := filepath.Join(base, "dhall")
	require.NoError(t, os.WriteFile(obstruction, nil, 0o600))
	err := ensureCacheDirectory(obstruction)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a directory"))
}

// A memo hit for a hashed import still verifies the digest.
func TestMemoHitStillVerifiesHash(t *testing.T) {
	dir := t.TempDir()
	content := "λ(b : Bool) → b == False"
	writeFile(t, dir, "pkg", content)
	normalized := eval.Normalize(mustParse(t, content))
	code, err := HashExpressionToCode(binary.DefaultVersion, normalized)
	require.NoError(t, err)

	status := EmptyStatus(dir)
	status.CacheDir = t.TempDir()

	// Seed the memo through an unhashed load, then corrupt it.
	mustLoad(t, status, "./pkg")
	for key := range status.Cache {
		status.Cache[key] = ast.BoolLit(true)
	}
	_, err = load(t, status, "./pkg")
	require.NoError(t, err, "unhashed imports trust the memo")

	// The hashed spelling of the same import has its own memo identity, so
	// seed it with the corrupted value directly.
	hashedKey := Compose([]ast.Import{status.Stack[0], mustImport(t, "./pkg "+code)}).String()
	status.Cache[hashedKey] = ast.BoolLit(true)
	_, err = load(t, status, "./pkg "+code)
	var mismatch *HashMismatch
	require.ErrorAs(t, err, &mismatch)
}
