package enclave

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// DigestPrefixLen is how many hex characters of a digest may appear in
// payment metadata and logs.
const DigestPrefixLen = 16

var ErrInvalidDigest = errors.New("digest must be 64 hex characters")

// Digest is the SHA-256 of a normalized biometric sample.  It is the lookup
// and duplicate-detection key; the encrypted template is never decrypted for
// matching.
type Digest [sha256.Size]byte

// Normalize trims surrounding whitespace and uppercases the sample.
func Normalize(sample string) string {
	return strings.ToUpper(strings.TrimSpace(sample))
}

func Hash(sample string) Digest {
	return sha256.Sum256([]byte(Normalize(sample)))
}

// Matches reports whether sample hashes to stored, in constant time.
func Matches(sample string, stored Digest) bool {
	h := Hash(sample)
	return subtle.ConstantTimeCompare(h[:], stored[:]) == 1
}

func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != hex.EncodedLen(len(d)) {
		return Digest{}, ErrInvalidDigest
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, ErrInvalidDigest
	}
	return d, nil
}

// DigestFromBytes copies a 32-byte slice (e.g. a BLOB column) into a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != len(d) {
		return Digest{}, ErrInvalidDigest
	}
	copy(d[:], b)
	return d, nil
}

// String returns the lowercase hex form (64 characters).
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Prefix returns the truncated audit fragment.
func (d Digest) Prefix() string {
	return d.String()[:DigestPrefixLen]
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}
