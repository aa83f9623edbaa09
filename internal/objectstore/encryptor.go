package objectstore

import (
	"crypto/rand"
	"io"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

// Encryptor wraps every stored object's payload with a per-object
// nonce under the repository's current symmetric key (spec.md section
// 4.A: "every stored blob is wrapped ... by the repository's current
// key"). Key rotation is handled by callers keeping prior keys available
// for decrypting older objects; this type deliberately does only the
// per-object seal/open, not key management.
type Encryptor struct {
	key [keySize]byte
}

// NewEncryptor builds an Encryptor from a 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != keySize {
		return nil, dogmaerrors.New(dogmaerrors.Corruption, "encryption key must be %d bytes, got %d", keySize, len(key))
	}
	var e Encryptor
	copy(e.key[:], key)
	return &e, nil
}

// GenerateKey returns a fresh random repository key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts payload, prefixing the ciphertext with a fresh random
// nonce.
func (e *Encryptor) Seal(payload []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(payload)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, payload, &nonce, &e.key), nil
}

// Open decrypts data produced by Seal.
func (e *Encryptor) Open(data []byte) ([]byte, error) {
	if len(data) < 24 {
		return nil, dogmaerrors.New(dogmaerrors.Corruption, "sealed object too short")
	}
	var nonce [24]byte
	copy(nonce[:], data[:24])
	out, ok := secretbox.Open(nil, data[24:], &nonce, &e.key)
	if !ok {
		return nil, dogmaerrors.New(dogmaerrors.Corruption, "failed to open sealed object: authentication failed")
	}
	return out, nil
}
