package imports

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/binary"
	"github.com/clavoie-takt/dhall/eval"
)

// HashExpression computes the SHA-256 digest of the canonical binary
// encoding of a fully resolved expression. The expression is
// α-normalized first, so binder names never influence the digest.
func HashExpression(version binary.ProtocolVersion, expr ast.Expr) ([sha256.Size]byte, error) {
	encoded, err := binary.Encode(version, eval.AlphaNormalize(expr))
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(encoded), nil
}

// HashExpressionToCode renders the digest in the sha256:<hex> form used by
// the import surface syntax.
func HashExpressionToCode(version binary.ProtocolVersion, expr ast.Expr) (string, error) {
	digest, err := HashExpression(version, expr)
	if err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(digest[:]), nil
}
