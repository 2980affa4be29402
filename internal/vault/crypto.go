package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	seedSize  = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrDecrypt is returned when a blob cannot be opened: wrong key, corrupt
// ciphertext or an unrecognised header.
var ErrDecrypt = errors.New("history blob cannot be decrypted")

// Key is a secretbox key.
type Key = [keySize]byte

// DeriveKey derives the history key from a passphrase and the persisted
// random seed using Argon2id. The same inputs always give the same key.
func DeriveKey(passphrase string, seed []byte) *Key {
	var key Key
	copy(key[:], argon2.IDKey([]byte(passphrase), seed, argonTime, argonMemory, argonThreads, keySize))
	return &key
}

// Seal encrypts plaintext with key, prepending a random nonce.
// Returns nonce+ciphertext.
func Seal(plaintext []byte, key *Key) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Unseal decrypts ciphertext (nonce+ciphertext) with key.
func Unseal(ciphertext []byte, key *Key) ([]byte, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed (wrong key?)", ErrDecrypt)
	}
	return plain, nil
}
