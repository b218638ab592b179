package keys

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "alice.json")

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.NoError(t, SaveKeypair(path, key))

	actual, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, key, actual)
}

func TestLoadKeypair_CLIFormat(t *testing.T) {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	values := make([]string, len(key))
	for i, b := range key {
		values[i] = strconv.Itoa(int(b))
	}
	raw := "[" + strings.Join(values, ", ") + "]"

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	actual, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, key, actual)
}

func TestLoadKeypair_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadKeypair(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tampered := append(ed25519.PrivateKey{}, key...)
	tampered[63] ^= 0xff

	for name, contents := range map[string]string{
		"not json":     "hello",
		"short":        "[1,2,3]",
		"out of range": "[" + strings.Repeat("256,", 63) + "256]",
		"not an array": `"abc"`,
	} {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		_, err := LoadKeypair(path)
		assert.ErrorIs(t, err, ErrInvalidKeypair, name)
	}

	path := filepath.Join(dir, "tampered.json")
	require.NoError(t, SaveKeypair(path, tampered))
	_, err = LoadKeypair(path)
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	assert.ErrorIs(t, SaveKeypair(path, key[:32]), ErrInvalidKeypair)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "program_pub.json")
	require.NoError(t, SavePublicKey(path, pub))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `"`+base58.Encode(pub)+`"`, string(raw))

	actual, err := LoadPublicKey(path)
	require.NoError(t, err)
	assert.Equal(t, pub, actual)
}

func TestLoadPublicKey_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPublicKey(filepath.Join(dir, "missing_pub.json"))
	assert.ErrorIs(t, err, ErrNotFound)

	for name, contents := range map[string]string{
		"not json":     "abc",
		"not base58":   `"0OIl"`,
		"wrong size":   `"` + base58.Encode([]byte{1, 2, 3}) + `"`,
		"not a string": "[1,2]",
	} {
		path := filepath.Join(dir, name+"_pub.json")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		_, err := LoadPublicKey(path)
		assert.ErrorIs(t, err, ErrInvalidAddress, name)
	}

	assert.ErrorIs(t, SavePublicKey(filepath.Join(dir, "x_pub.json"), []byte{1}), ErrInvalidAddress)
}
