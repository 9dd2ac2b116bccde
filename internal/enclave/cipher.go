package enclave

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/tink-crypto/tink-go/v2/aead/subtle"
)

const (
	NonceSize = subtle.AESGCMIVSize  // 12 bytes
	TagSize   = subtle.AESGCMTagSize // 16 bytes
)

var (
	ErrEmptyPlaintext = errors.New("cannot encrypt empty data")

	// ErrDecryption is the only error Decrypt returns.  Tampering, a wrong
	// master secret and a truncated envelope all look the same to callers.
	ErrDecryption = errors.New("decryption failed")
)

// Envelope is the stored form of an encrypted template.  Both fields are
// base64 (std encoding) and are useless without each other and the master
// secret.
type Envelope struct {
	Salt    string // 16 random bytes
	Payload string // nonce || ciphertext || tag
}

// Cipher seals templates with AES-256-GCM under a key derived per record.
type Cipher struct {
	kdf    *KeyDeriver
	rand   io.Reader
	logger *log.Logger
}

// NewCipher builds a Cipher.  logger receives decryption diagnostics that
// must not reach callers; nil discards them.
func NewCipher(kdf *KeyDeriver, logger *log.Logger) *Cipher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Cipher{kdf: kdf, rand: rand.Reader, logger: logger}
}

// Encrypt draws a fresh salt (and therefore a fresh key) on every call; the
// AEAD draws a fresh random nonce on top of that.
func (c *Cipher) Encrypt(plaintext []byte) (Envelope, error) {
	if len(plaintext) == 0 {
		return Envelope{}, ErrEmptyPlaintext
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return Envelope{}, fmt.Errorf("generate salt: %w", err)
	}

	key, err := c.kdf.Derive(salt)
	if err != nil {
		return Envelope{}, err
	}
	defer zeroBytes(key)

	a, err := subtle.NewAESGCM(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("init aead: %w", err)
	}

	// No associated data.
	payload, err := a.Encrypt(plaintext, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal: %w", err)
	}

	return Envelope{
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Payload: base64.StdEncoding.EncodeToString(payload),
	}, nil
}

func (c *Cipher) Decrypt(env Envelope) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) != SaltSize {
		c.logger.Printf("enclave decrypt: bad salt encoding (len=%d)", len(salt))
		return nil, ErrDecryption
	}
	payload, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		c.logger.Printf("enclave decrypt: bad payload encoding: %v", err)
		return nil, ErrDecryption
	}
	if len(payload) < NonceSize+TagSize {
		c.logger.Printf("enclave decrypt: payload too short (len=%d)", len(payload))
		return nil, ErrDecryption
	}

	key, err := c.kdf.Derive(salt)
	if err != nil {
		c.logger.Printf("enclave decrypt: derive: %v", err)
		return nil, ErrDecryption
	}
	defer zeroBytes(key)

	a, err := subtle.NewAESGCM(key)
	if err != nil {
		c.logger.Printf("enclave decrypt: init aead: %v", err)
		return nil, ErrDecryption
	}

	// The first NonceSize bytes are the nonce; the AEAD splits them itself.
	plaintext, err := a.Decrypt(payload, nil)
	if err != nil {
		c.logger.Printf("enclave decrypt: open: %v", err)
		return nil, ErrDecryption
	}
	return plaintext, nil
}
