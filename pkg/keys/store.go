package keys

import (
	"bytes"
	"crypto/ed25519"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store resolves role names ("alice", "bob", "program", ...) to key files in a
// single directory. A role may have a keypair file <name>.json, a public
// address file <name>_pub.json, or both.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Keypair loads the keypair for name. When a public address file exists for
// the same role, it must agree with the keypair.
func (s *Store) Keypair(name string) (ed25519.PrivateKey, error) {
	key, err := LoadKeypair(s.keypairPath(name))
	if err != nil {
		return nil, err
	}

	pub, err := LoadPublicKey(s.publicKeyPath(name))
	if errors.Is(err, ErrNotFound) {
		return key, nil
	} else if err != nil {
		return nil, err
	}

	if !bytes.Equal(pub, key.Public().(ed25519.PublicKey)) {
		return nil, errors.Wrap(ErrKeyMismatch, name)
	}

	return key, nil
}

// SaveKeypair writes both the keypair and its public address file.
func (s *Store) SaveKeypair(name string, key ed25519.PrivateKey) error {
	if err := SaveKeypair(s.keypairPath(name), key); err != nil {
		return err
	}

	return SavePublicKey(s.publicKeyPath(name), key.Public().(ed25519.PublicKey))
}

// PublicKey returns the address for name, preferring the public address file
// and falling back to the public half of the keypair.
func (s *Store) PublicKey(name string) (ed25519.PublicKey, error) {
	pub, err := LoadPublicKey(s.publicKeyPath(name))
	if err == nil {
		return pub, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	key, err := LoadKeypair(s.keypairPath(name))
	if err != nil {
		return nil, err
	}

	return key.Public().(ed25519.PublicKey), nil
}

func (s *Store) SavePublicKey(name string, pub ed25519.PublicKey) error {
	return SavePublicKey(s.publicKeyPath(name), pub)
}

func (s *Store) keypairPath(name string) string {
	return filepath.Join(s.dir, name+keypairSuffix)
}

func (s *Store) publicKeyPath(name string) string {
	return filepath.Join(s.dir, name+publicKeySuffix)
}
