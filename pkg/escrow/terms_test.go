package escrow

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTerms(t *testing.T) {
	dir := t.TempDir()

	path := writeTerms(t, dir, "full.json", `{"transferAmount": 1000000, "expireDate": 1700000000}`)
	terms, err := LoadTerms(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, terms.TransferAmount)
	require.NotNil(t, terms.ExpireDate)
	assert.EqualValues(t, 1_700_000_000, *terms.ExpireDate)

	path = writeTerms(t, dir, "no_expiry.json", `{"transferAmount": 42}`)
	terms, err = LoadTerms(path)
	require.NoError(t, err)
	assert.EqualValues(t, 42, terms.TransferAmount)
	assert.Nil(t, terms.ExpireDate)

	path = writeTerms(t, dir, "max.json", `{"transferAmount": "18446744073709551615"}`)
	terms, err = LoadTerms(path)
	require.NoError(t, err)
	assert.EqualValues(t, uint64(math.MaxUint64), terms.TransferAmount)

	path = writeTerms(t, dir, "exact.json", `{"transferAmount": 9007199254740991}`)
	terms, err = LoadTerms(path)
	require.NoError(t, err)
	assert.EqualValues(t, uint64(1<<53-1), terms.TransferAmount)
}

func TestLoadTerms_Invalid(t *testing.T) {
	dir := t.TempDir()

	for name, contents := range map[string]string{
		"missing.json":  `{"expireDate": 1}`,
		"zero.json":     `{"transferAmount": 0}`,
		"negative.json": `{"transferAmount": -5}`,
		"expiry.json":   `{"transferAmount": 5, "expireDate": -1}`,
		"fraction.json": `{"transferAmount": 1.5}`,
		"huge.json":     `{"transferAmount": 18446744073709551615}`,
		"inexact.json":  `{"transferAmount": 9007199254740993}`,
		"string.json":   `{"transferAmount": "1.5"}`,
		"overflow.json": `{"transferAmount": "18446744073709551616"}`,
		"bool.json":     `{"transferAmount": true}`,
		"expiry2.json":  `{"transferAmount": 5, "expireDate": 1.25}`,
	} {
		_, err := LoadTerms(writeTerms(t, dir, name, contents))
		assert.ErrorIs(t, err, ErrInvalidTerms, name)
	}

	_, err := LoadTerms(filepath.Join(dir, "does_not_exist.json"))
	assert.Error(t, err)

	_, err = LoadTerms(writeTerms(t, dir, "garbage.json", `{"transferAmount":`))
	assert.Error(t, err)
}

func TestTerms_Validate(t *testing.T) {
	assert.ErrorIs(t, Terms{}.Validate(), ErrInvalidTerms)
	assert.NoError(t, Terms{TransferAmount: 1}.Validate())
}

func writeTerms(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}
