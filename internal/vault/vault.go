// Package vault persists the clipboard history as a single, optionally
// encrypted blob.
//
// Blob layout:
//
//	[ "WCLP" ][ version:1 ][ flags:1 ][ body ]
//
// With flagEncrypted set the body is a NaCl secretbox with a random 24-byte
// nonce prepended; otherwise it is the plain serialisation (see codec.go).
// The key is derived with Argon2id from a passphrase (the configured key, or
// the machine id) and a random 32-byte seed persisted next to the config.
package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/renameio/v2"

	"go.klb.dev/wayclip/internal/history"
)

const (
	blobVersion   = 1
	flagEncrypted = 1 << 0
	headerSize    = 6
)

var magic = []byte("WCLP")

// Options configures a Vault.
type Options struct {
	// Path of the history blob.
	Path string
	// SeedPath of the 32-byte key seed. Only used when Encrypt is set.
	SeedPath string
	// Encrypt enables encryption of the blob.
	Encrypt bool
	// Passphrase for key derivation; empty uses the machine id.
	Passphrase string
}

// Vault reads and writes the history blob. It implements history.Persister.
type Vault struct {
	path string
	key  *Key // nil = plaintext
}

// Open prepares a vault, loading or creating the key seed when encryption is
// enabled. It does not read the blob.
func Open(opts Options) (*Vault, error) {
	v := &Vault{path: opts.Path}
	if !opts.Encrypt {
		return v, nil
	}
	seed, err := LoadSeed(opts.SeedPath)
	if err != nil {
		return nil, err
	}
	pass, err := passphrase(opts.Passphrase)
	if err != nil {
		return nil, err
	}
	v.key = DeriveKey(pass, seed)
	return v, nil
}

// NewWithKey returns a vault using key directly; nil key stores plaintext.
func NewWithKey(path string, key *Key) *Vault {
	return &Vault{path: path, key: key}
}

// Path returns the blob path.
func (v *Vault) Path() string { return v.path }

// Encrypted reports whether blobs are written encrypted.
func (v *Vault) Encrypted() bool { return v.key != nil }

// Save serialises, optionally encrypts and atomically replaces the blob.
func (v *Vault) Save(items []history.Item) error {
	blob, err := v.Encode(items)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := renameio.WriteFile(v.path, blob, 0o600); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Load reads the blob. A missing blob is an empty history.
func (v *Vault) Load() ([]history.Item, error) {
	blob, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return v.Decode(blob)
}

// Encode builds a blob from items.
func (v *Vault) Encode(items []history.Item) ([]byte, error) {
	body := Marshal(items)
	var flags byte
	if v.key != nil {
		ct, err := Seal(body, v.key)
		if err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
		body = ct
		flags |= flagEncrypted
	}

	blob := make([]byte, 0, headerSize+len(body))
	blob = append(blob, magic...)
	blob = append(blob, blobVersion, flags)
	return append(blob, body...), nil
}

// Decode parses a blob produced by Encode.
func (v *Vault) Decode(blob []byte) ([]history.Item, error) {
	if len(blob) < headerSize || !bytes.Equal(blob[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: not a history blob", ErrDecrypt)
	}
	if blob[4] != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecrypt, blob[4])
	}
	body := blob[headerSize:]
	if blob[5]&flagEncrypted != 0 {
		if v.key == nil {
			return nil, fmt.Errorf("%w: blob is encrypted but encryption is disabled", ErrDecrypt)
		}
		plain, err := Unseal(body, v.key)
		if err != nil {
			return nil, err
		}
		body = plain
	}
	items, err := Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return items, nil
}

// LoadSeed returns the key seed at path, creating it with fresh random bytes
// if it is missing or short.
func LoadSeed(path string) ([]byte, error) {
	seed, err := os.ReadFile(path)
	if err == nil && len(seed) >= seedSize {
		return seed[:seedSize], nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	seed = make([]byte, seedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("seed generation: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create seed dir: %w", err)
	}
	if err := renameio.WriteFile(path, seed, 0o600); err != nil {
		return nil, fmt.Errorf("write seed: %w", err)
	}
	return seed, nil
}

func passphrase(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	id, err := machineid.ProtectedID("wayclip")
	if err != nil {
		return "", fmt.Errorf("machine id: %w", err)
	}
	return id, nil
}
