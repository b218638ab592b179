package binary

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterReader(t *testing.T) {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}

	native := uint64(2039280)

	buf := make([]byte, 1+1+4+8+32+36+36+12)
	w := NewWriter(buf)
	w.PutUint8(7)
	w.PutBool(true)
	w.PutUint32(0xdeadbeef)
	w.PutUint64(1_000_000)
	w.PutKey32(key)
	w.PutOptionalKey32(key, 4)
	w.PutOptionalKey32(nil, 4)
	w.PutOptionalUint64(&native, 4)
	assert.Equal(t, len(buf), w.Offset())

	assert.Equal(t, []byte{0x40, 0x42, 0x0f, 0, 0, 0, 0, 0}, buf[6:14])

	r := NewReader(buf)
	assert.EqualValues(t, 7, r.Uint8())
	assert.True(t, r.Bool())
	assert.EqualValues(t, 0xdeadbeef, r.Uint32())
	assert.EqualValues(t, 1_000_000, r.Uint64())
	assert.Equal(t, key, r.Key32())
	assert.Equal(t, key, r.OptionalKey32(4))
	assert.Nil(t, r.OptionalKey32(4))
	assert.Equal(t, &native, r.OptionalUint64(4))
	assert.Equal(t, len(buf), r.Offset())
}

func TestReader_NonzeroBool(t *testing.T) {
	assert.True(t, NewReader([]byte{0xff}).Bool())
	assert.False(t, NewReader([]byte{0x00}).Bool())
}
