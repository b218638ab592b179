// Package keys reads and writes the local key material used by escrow
// participants: Solana CLI keypair files and per-role public address files.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	keypairSuffix   = ".json"
	publicKeySuffix = "_pub.json"

	fileMode = 0o600
	dirMode  = 0o700
)

var (
	ErrNotFound       = errors.New("key file not found")
	ErrInvalidKeypair = errors.New("invalid keypair")
	ErrInvalidAddress = errors.New("invalid public address")
	ErrKeyMismatch    = errors.New("public address does not match keypair")
)

// LoadKeypair reads a keypair in the Solana CLI format: a JSON array holding
// the 32 byte seed followed by the 32 byte public key.
func LoadKeypair(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, path)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read keypair %s", path)
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrapf(ErrInvalidKeypair, "%s: %v", path, err)
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidKeypair, "%s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(values))
	}

	b := make([]byte, ed25519.PrivateKeySize)
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, errors.Wrapf(ErrInvalidKeypair, "%s: byte %d out of range", path, i)
		}
		b[i] = byte(v)
	}

	// The trailing half must be the key derived from the seed.
	key := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(key, b) {
		return nil, errors.Wrapf(ErrInvalidKeypair, "%s: public half does not match seed", path)
	}

	return key, nil
}

// SaveKeypair writes key to path in the Solana CLI format.
func SaveKeypair(path string, key ed25519.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return errors.Wrapf(ErrInvalidKeypair, "expected %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}

	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "failed to encode keypair")
	}

	return writeFile(path, raw)
}

// LoadPublicKey reads a public address file: a JSON string holding the
// base58 encoded key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, path)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read public key %s", path)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "%s: %v", path, err)
	}

	return decodeAddress(encoded)
}

// SavePublicKey writes pub to path as a JSON encoded base58 string.
func SavePublicKey(path string, pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.Wrapf(ErrInvalidAddress, "expected %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	raw, err := json.Marshal(base58.Encode(pub))
	if err != nil {
		return errors.Wrap(err, "failed to encode public key")
	}

	return writeFile(path, raw)
}

func decodeAddress(encoded string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(encoded)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: %v", encoded, err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: expected %d bytes, got %d", encoded, ed25519.PublicKeySize, len(decoded))
	}

	return decoded, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	if err := os.WriteFile(path, data, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}
