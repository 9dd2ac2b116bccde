package enclave

import (
	"errors"
	"runtime"
	"strings"
)

// MinSecretLength is the shortest master secret the enclave accepts.
const MinSecretLength = 64

var (
	ErrSecretMissing  = errors.New("master secret is not set")
	ErrSecretTooShort = errors.New("master secret must be at least 64 characters")
)

// MasterSecret is the process-wide key material every record key is derived
// from.  It is loaded once at startup and handed to NewKeyDeriver; nothing in
// this package reads it from the environment.
type MasterSecret struct {
	b []byte
}

func NewMasterSecret(s string) (MasterSecret, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MasterSecret{}, ErrSecretMissing
	}
	if len(s) < MinSecretLength {
		return MasterSecret{}, ErrSecretTooShort
	}
	return MasterSecret{b: []byte(s)}, nil
}

func (m MasterSecret) bytes() []byte {
	out := make([]byte, len(m.b))
	copy(out, m.b)
	return out
}

// String never reveals the secret.
func (m MasterSecret) String() string {
	return "MasterSecret(redacted)"
}

// zeroBytes overwrites a byte slice with zeros
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
