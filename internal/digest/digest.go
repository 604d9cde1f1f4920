// Package digest computes the content hash that ties a generated response to
// its ledger entry.
//
// A payload is first serialized with encoding/json and then rewritten in the
// JSON Canonicalization Scheme (RFC 8785): object keys sorted at every level,
// no insignificant whitespace, fixed number formatting. The SHA-256 of those
// bytes, hex encoded, is the digest. Two payloads with the same content always
// produce the same digest regardless of map insertion order.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
)

// Size is the length of a hex-encoded digest.
const Size = sha256.Size * 2

// PreviewLength is the number of characters of the canonical payload kept as
// a human-readable preview.
const PreviewLength = 200

// ErrSerialization is returned when a payload cannot be canonicalized.
var ErrSerialization = errors.New("payload is not serializable")

// Canonicalize returns the RFC 8785 canonical JSON encoding of payload.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalize: %v", ErrSerialization, err)
	}
	return canonical, nil
}

// Sum returns the hex-encoded SHA-256 of already canonical bytes.
func Sum(canonical []byte) string {
	h := sha256.Sum256(canonical)
	return hex.EncodeToString(h[:])
}

// Compute canonicalizes payload and returns its digest.
func Compute(payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return Sum(canonical), nil
}

// Preview truncates the canonical form to PreviewLength characters and marks
// the truncation with "...". Truncation counts runes so multi-byte text is
// never split mid-character.
func Preview(canonical []byte) string {
	if utf8.RuneCount(canonical) <= PreviewLength {
		return string(canonical)
	}
	var b strings.Builder
	n := 0
	for _, r := range string(canonical) {
		if n == PreviewLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("...")
	return b.String()
}

// Normalize lower-cases s and trims surrounding whitespace. Digests are
// produced in lower case, so a client echoing one back in upper case still
// matches.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Valid reports whether s looks like a digest produced by Sum.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && s == strings.ToLower(s)
}
