package enclave

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize      = 16
	KeySize       = 32 // AES-256
	KDFIterations = 200_000
)

// KeyDeriver stretches the master secret and a per-record salt into a
// record-specific AES-256 key.  Derive is deterministic: the same salt always
// yields the same key, which is what lets Decrypt rebuild it later.
type KeyDeriver struct {
	secret MasterSecret
}

func NewKeyDeriver(secret MasterSecret) *KeyDeriver {
	return &KeyDeriver{secret: secret}
}

// Derive runs PBKDF2-HMAC-SHA256.  Callers should zero the returned key once
// they are done with it.
func (d *KeyDeriver) Derive(salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("derive: salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	pw := d.secret.bytes()
	defer zeroBytes(pw)
	return pbkdf2.Key(pw, salt, KDFIterations, KeySize, sha256.New), nil
}
