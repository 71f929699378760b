package lexer

import (
	"bytes"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestNormalizeStripsBOM(t *testing.T) {
	src := append([]byte{0xEF, 0xBB, 0xBF}, []byte("True")...)
	got := Normalize(src)
	if !bytes.Equal(got, []byte("True")) {
		t.Errorf("expected BOM stripped, got %q", got)
	}
}

func TestNormalizeNFC(t *testing.T) {
	// "é" in decomposed form (e + combining acute).
	nfd := norm.NFD.Bytes([]byte(`"café"`))
	got := Normalize(nfd)
	if !norm.NFC.IsNormal(got) {
		t.Errorf("expected NFC output, got %q", got)
	}
	want := norm.NFC.Bytes([]byte(`"café"`))
	if !bytes.Equal(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	src := []byte(`let x = "café" in x`)
	once := Normalize(src)
	twice := Normalize(once)
	if !bytes.Equal(once, twice) {
		t.Errorf("normalization is not idempotent: %q vs %q", once, twice)
	}
}
