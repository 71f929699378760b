package lexer

import (
	"bytes"

	"golang.org/x/text/unicode/norm"
)

// bomUTF8 is the UTF-8 Byte Order Mark
var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// Normalize performs input normalization at the lexer boundary:
// 1. Strips UTF-8 BOM if present
// 2. Applies Unicode NFC normalization
//
// This ensures that lexically equivalent source text produces identical
// token streams regardless of encoding variations, which matters here
// because expressions are hashed: the same file fetched from two mirrors
// must canonicalize to the same bytes.
func Normalize(src []byte) []byte {
	src = bytes.TrimPrefix(src, bomUTF8)

	// IsNormal() is fast and avoids allocation if already normalized
	if !norm.NFC.IsNormal(src) {
		src = norm.NFC.Bytes(src)
	}

	return src
}
