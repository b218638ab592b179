package wrapper

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/config"
	"github.com/code-payments/code-escrow/pkg/config/memory"
)

func TestBoolConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewBoolConfig(mock, true)

	testWrapper(t, mock, wrapper, true, false, []byte("false"))

	mock.SetValue([]byte("not a bool"))
	_, err := wrapper.GetSafe(context.Background())
	assert.Error(t, err)
}

func TestUint64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewUint64Config(mock, 30)

	testWrapper(t, mock, wrapper, 30, 7, []byte("7"))

	mock.SetValue(12)
	val, err := wrapper.GetSafe(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 12, val)

	mock.SetValue(-1)
	val, err = wrapper.GetSafe(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 12, val)

	mock.SetValue([]byte("-5"))
	_, err = wrapper.GetSafe(context.Background())
	assert.Error(t, err)
}

func TestStringConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewStringConfig(mock, "confirmed")

	testWrapper(t, mock, wrapper, "confirmed", "finalized", []byte("finalized"))

	mock.SetValue("processed")
	assert.Equal(t, "processed", wrapper.Get(context.Background()))
}

func TestDurationConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewDurationConfig(mock, 250*time.Millisecond)

	testWrapper(t, mock, wrapper, 250*time.Millisecond, 2*time.Second, []byte("2s"))

	mock.SetValue("1m")
	assert.Equal(t, time.Minute, wrapper.Get(context.Background()))

	mock.SetValue([]byte("not a duration"))
	val, err := wrapper.GetSafe(context.Background())
	assert.Error(t, err)
	assert.Equal(t, time.Minute, val)
}

func testWrapper[T any](t *testing.T, mock *memory.Config, wrapper config.Value[T], defaultValue, overrideValue T, rawOverride []byte) {
	ctx := context.Background()

	// Return the default value when no override is set
	val, err := wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, wrapper.Get(ctx))

	// The overriden value is returned when set
	mock.SetValue(rawOverride)
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, overrideValue, val)
	assert.Equal(t, overrideValue, wrapper.Get(ctx))

	// The last observed config value is returned on error
	mock.SetError(errors.New("unavailable"))
	val, err = wrapper.GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, overrideValue, val)
	assert.Equal(t, overrideValue, wrapper.Get(ctx))

	// The default value is returned when the override no longer has a value
	mock.SetError(nil)
	mock.SetValue(nil)
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)

	// Return an unsupported source value type
	mock.SetValue(struct{}{})
	val, err = wrapper.GetSafe(ctx)
	assert.Equal(t, ErrUnsuportedConversion, err)
	assert.Equal(t, defaultValue, val)
}
