package tests

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/deployment"
)

func RunTests(t *testing.T, s deployment.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s deployment.Store){
		testHappyPath,
		testContentMatching,
		testValidation,
		testMultipleRecords,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s deployment.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		ctx := context.Background()
		start := time.Now()
		time.Sleep(time.Millisecond)

		record := &deployment.Record{
			Name:        "program",
			Address:     newAddress(t),
			ContentHash: deployment.ContentHash([]byte("escrow program v1")),
		}
		cloned := record.Clone()

		require.NoError(t, s.Delete(ctx, record.Name))
		_, err := s.Get(ctx, record.Name)
		assert.Equal(t, deployment.ErrNotFound, err)

		require.NoError(t, s.Save(ctx, record))
		assert.True(t, record.CreatedAt.After(start))
		assert.True(t, record.LastUpdatedAt.After(start))

		actual, err := s.Get(ctx, record.Name)
		require.NoError(t, err)
		assert.True(t, actual.CreatedAt.After(start))
		assert.True(t, actual.LastUpdatedAt.After(start))
		assertEquivalentRecords(t, &cloned, actual)

		updateTime := time.Now()
		time.Sleep(time.Millisecond)
		record.Address = newAddress(t)
		record.ContentHash = deployment.ContentHash([]byte("escrow program v2"))
		cloned = record.Clone()
		require.NoError(t, s.Save(ctx, record))

		actual, err = s.Get(ctx, record.Name)
		require.NoError(t, err)
		assert.True(t, actual.CreatedAt.Before(updateTime))
		assert.True(t, actual.LastUpdatedAt.After(updateTime))
		assertEquivalentRecords(t, &cloned, actual)

		require.NoError(t, s.Delete(ctx, record.Name))
		_, err = s.Get(ctx, record.Name)
		assert.Equal(t, deployment.ErrNotFound, err)
	})
}

func testContentMatching(t *testing.T, s deployment.Store) {
	t.Run("testContentMatching", func(t *testing.T) {
		ctx := context.Background()

		artifact := []byte("escrow program v1")

		_, err := s.GetIfContentMatches(ctx, "program", deployment.ContentHash(artifact))
		assert.Equal(t, deployment.ErrNotFound, err)

		record := &deployment.Record{
			Name:        "program",
			Address:     newAddress(t),
			ContentHash: deployment.ContentHash(artifact),
		}
		require.NoError(t, s.Save(ctx, record))

		actual, err := s.GetIfContentMatches(ctx, "program", deployment.ContentHash(artifact))
		require.NoError(t, err)
		assert.Equal(t, record.Address, actual.Address)

		_, err = s.GetIfContentMatches(ctx, "program", deployment.ContentHash([]byte("escrow program v2")))
		assert.Equal(t, deployment.ErrContentMismatch, err)

		unhashed := &deployment.Record{
			Name:    "alice",
			Address: newAddress(t),
		}
		require.NoError(t, s.Save(ctx, unhashed))

		_, err = s.GetIfContentMatches(ctx, "alice", "")
		assert.Equal(t, deployment.ErrContentMismatch, err)

		actual, err = s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, actual.ContentHash)
	})
}

func testValidation(t *testing.T, s deployment.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		for _, record := range []*deployment.Record{
			{Address: newAddress(t)},
			{Name: "program"},
			{Name: "program", Address: "not-base58-0OIl"},
			{Name: "program", Address: base58.Encode([]byte{1, 2, 3})},
			{Name: "program", Address: newAddress(t), ContentHash: "abc"},
		} {
			assert.Error(t, s.Save(ctx, record))
		}

		_, err := s.Get(ctx, "program")
		assert.Equal(t, deployment.ErrNotFound, err)
	})
}

func testMultipleRecords(t *testing.T, s deployment.Store) {
	t.Run("testMultipleRecords", func(t *testing.T) {
		ctx := context.Background()

		names := []string{"program", "alice", "bob"}
		addresses := make(map[string]string)
		for _, name := range names {
			addresses[name] = newAddress(t)
			require.NoError(t, s.Save(ctx, &deployment.Record{
				Name:    name,
				Address: addresses[name],
			}))
		}

		require.NoError(t, s.Delete(ctx, "alice"))

		for _, name := range names {
			actual, err := s.Get(ctx, name)
			if name == "alice" {
				assert.Equal(t, deployment.ErrNotFound, err)
				continue
			}

			require.NoError(t, err)
			assert.Equal(t, addresses[name], actual.Address)

			pub, err := actual.PublicKey()
			require.NoError(t, err)
			assert.Equal(t, addresses[name], base58.Encode(pub))
		}
	})
}

func newAddress(t *testing.T) string {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return base58.Encode(pub)
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *deployment.Record) {
	assert.Equal(t, obj1.Name, obj2.Name)
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.ContentHash, obj2.ContentHash)
}
