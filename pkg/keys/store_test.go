package keys

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Keypair(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Keypair("alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveKeypair("alice", key))

	assert.FileExists(t, filepath.Join(s.Dir(), "alice.json"))
	assert.FileExists(t, filepath.Join(s.Dir(), "alice_pub.json"))

	actual, err := s.Keypair("alice")
	require.NoError(t, err)
	assert.Equal(t, key, actual)

	pub, err := s.PublicKey("alice")
	require.NoError(t, err)
	assert.Equal(t, key.Public(), pub)
}

func TestStore_KeypairWithoutPublicFile(t *testing.T) {
	s := NewStore(t.TempDir())

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, SaveKeypair(filepath.Join(s.Dir(), "id.json"), key))

	actual, err := s.Keypair("id")
	require.NoError(t, err)
	assert.Equal(t, key, actual)

	pub, err := s.PublicKey("id")
	require.NoError(t, err)
	assert.Equal(t, key.Public(), pub)
}

func TestStore_KeyMismatch(t *testing.T) {
	s := NewStore(t.TempDir())

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.NoError(t, s.SaveKeypair("bob", key))
	require.NoError(t, s.SavePublicKey("bob", other))

	_, err = s.Keypair("bob")
	assert.ErrorIs(t, err, ErrKeyMismatch)

	pub, err := s.PublicKey("bob")
	require.NoError(t, err)
	assert.Equal(t, other, pub)
}

func TestStore_PublicKeyOnly(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.PublicKey("program")
	assert.ErrorIs(t, err, ErrNotFound)

	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, s.SavePublicKey("program", program))

	actual, err := s.PublicKey("program")
	require.NoError(t, err)
	assert.Equal(t, program, actual)

	_, err = s.Keypair("program")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CorruptPublicFile(t *testing.T) {
	s := NewStore(t.TempDir())

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveKeypair("alice", key))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "alice_pub.json"), []byte("{"), 0o600))

	_, err = s.Keypair("alice")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = s.PublicKey("alice")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
