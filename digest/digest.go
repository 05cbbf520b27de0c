// Package digest computes and compares the content digests committed on-chain.
//
// The algorithm is pinned: it must match whatever produced the commitment at
// memo-creation time, which is the legacy Keccak-256 used by the EVM
// (not NIST SHA3-256).
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Algorithm names the pinned hash function.
const Algorithm = "keccak256"

// Size is the digest length in bytes.
const Size = 32

var ErrInvalidDigest = errors.New("digest: invalid hex digest")

// Digest is a Keccak-256 digest.
type Digest [Size]byte

// Sum returns the digest of the UTF-8 bytes of content.
func Sum(content string) Digest {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(content))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Hex returns the 0x-prefixed lowercase hex form.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Hex() }

// Canonical lowercases s and strips one leading 0x/0X prefix.
// Surrounding whitespace is not removed; it makes the digest unequal.
func Canonical(s string) string {
	s = strings.ToLower(s)
	return strings.TrimPrefix(s, "0x")
}

// Parse decodes a hex digest, with or without 0x prefix, in any letter case.
func Parse(s string) (Digest, error) {
	var d Digest
	c := Canonical(s)
	if len(c) != 2*Size {
		return d, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidDigest, 2*Size, len(c))
	}
	if _, err := hex.Decode(d[:], []byte(c)); err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return d, nil
}

// Equal reports whether two hex digests are identical after canonicalization.
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// Verify reports whether content hashes to expected.
// expected is compared exactly after canonicalization; there is no prefix or
// truncated matching.
func Verify(content, expected string) bool {
	return Equal(Sum(content).Hex(), expected)
}
