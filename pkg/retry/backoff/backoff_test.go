package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstant(t *testing.T) {
	s := Constant(250 * time.Millisecond)

	for _, attempts := range []uint{0, 1, 2, 30, math.MaxUint32} {
		assert.Equal(t, 250*time.Millisecond, s(attempts))
	}
}

func TestBinaryExponential(t *testing.T) {
	s := BinaryExponential(250 * time.Millisecond)

	assert.Equal(t, 250*time.Millisecond, s(0))
	assert.Equal(t, 250*time.Millisecond, s(1))
	assert.Equal(t, 500*time.Millisecond, s(2))
	assert.Equal(t, time.Second, s(3))
	assert.Equal(t, 2*time.Second, s(4))
	assert.Equal(t, 128*time.Second, s(10))
}

func TestBinaryExponential_Saturates(t *testing.T) {
	s := BinaryExponential(time.Second)

	assert.Equal(t, time.Duration(math.MaxInt64), s(40))
	assert.Equal(t, time.Duration(math.MaxInt64), s(64))
	assert.Equal(t, time.Duration(math.MaxInt64), s(1000))

	for i := uint(2); i < 100; i++ {
		assert.True(t, s(i) >= s(i-1))
	}

	assert.Equal(t, time.Duration(0), BinaryExponential(0)(10))
}
