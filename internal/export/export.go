// Package export seals decoded payloads under a user passphrase so that
// plaintext saves can leave the machine without exposing their contents.
package export

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	nonceSize  = 12
	keySize    = 32
	iterations = 100000

	// MinPassphraseLength is the shortest accepted passphrase.
	MinPassphraseLength = 12
)

// ErrPassphrase is returned when opening fails, covering both a wrong
// passphrase and a tampered envelope.
var ErrPassphrase = errors.New("invalid passphrase or corrupted data")

// Locker seals and opens passphrase-protected envelopes. The envelope layout
// is salt(32) || nonce(12) || ciphertext.
type Locker struct {
	passphrase []byte
}

// NewLocker creates a locker for the given passphrase.
func NewLocker(passphrase string) (*Locker, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, fmt.Errorf("passphrase must be at least %d characters", MinPassphraseLength)
	}
	return &Locker{passphrase: []byte(passphrase)}, nil
}

// Seal encrypts the payload under a key derived from the passphrase with a
// fresh random salt and nonce.
func (l *Locker) Seal(payload []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := l.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(payload)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, payload, nil), nil
}

// Open decrypts an envelope produced by Seal.
func (l *Locker) Open(envelope []byte) ([]byte, error) {
	if len(envelope) < saltSize+nonceSize+1 {
		return nil, fmt.Errorf("envelope too short: %d bytes", len(envelope))
	}

	salt := envelope[:saltSize]
	nonce := envelope[saltSize : saltSize+nonceSize]
	ciphertext := envelope[saltSize+nonceSize:]

	aead, err := l.aead(salt)
	if err != nil {
		return nil, err
	}

	payload, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrPassphrase
	}
	return payload, nil
}

func (l *Locker) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(l.passphrase, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
