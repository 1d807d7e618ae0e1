package wrapper

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/config/memory"
)

func TestValue_Lifecycle(t *testing.T) {
	ctx := context.Background()
	mock := memory.NewConfig(nil)
	wrapper := NewDurationConfig(mock, time.Second)

	// Return the default value when no override is set
	val, err := wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, val)

	// The overriden value is returned when set
	mock.Set("250ms")
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, val)
	assert.Equal(t, 250*time.Millisecond, wrapper.Get(ctx))

	// The last observed config value is returned on error
	mock.SetError(assert.AnError)
	val, err = wrapper.GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, 250*time.Millisecond, val)
	assert.Equal(t, 250*time.Millisecond, wrapper.Get(ctx))

	// The last observed config value is returned on a bad conversion
	mock.SetError(nil)
	mock.Set("not a duration")
	val, err = wrapper.GetSafe(ctx)
	assert.True(t, errors.Is(err, ErrUnsuportedConversion))
	assert.Equal(t, 250*time.Millisecond, val)

	// The default value is returned when the override no longer has a value
	mock.Clear()
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, val)
}

func TestBoolConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewBoolConfig(mock, true)
	assert.True(t, wrapper.Get(context.Background()))

	for _, tc := range []struct {
		raw      interface{}
		expected bool
	}{
		{[]byte("false"), false},
		{"true", true},
		{"0", false},
		{false, false},
		{true, true},
	} {
		mock.Set(tc.raw)
		val, err := wrapper.GetSafe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tc.expected, val, tc.raw)
	}
}

func TestUint64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewUint64Config(mock, 10)
	assert.EqualValues(t, 10, wrapper.Get(context.Background()))

	for _, raw := range []interface{}{[]byte("42"), "42", 42, int64(42), uint64(42), 42.0} {
		mock.Set(raw)
		val, err := wrapper.GetSafe(context.Background())
		require.NoError(t, err, raw)
		assert.EqualValues(t, 42, val, raw)
	}

	mock.Set("-1")
	val, err := wrapper.GetSafe(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 42, val)
}

func TestFloat64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewFloat64Config(mock, 1.5)
	assert.Equal(t, 1.5, wrapper.Get(context.Background()))

	for _, raw := range []interface{}{[]byte("2.5"), "2.5", 2.5} {
		mock.Set(raw)
		val, err := wrapper.GetSafe(context.Background())
		require.NoError(t, err, raw)
		assert.Equal(t, 2.5, val, raw)
	}
}

func TestStringConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewStringConfig(mock, "default")
	assert.Equal(t, "default", wrapper.Get(context.Background()))

	mock.Set([]byte("bytes"))
	assert.Equal(t, "bytes", wrapper.Get(context.Background()))

	mock.Set("string")
	assert.Equal(t, "string", wrapper.Get(context.Background()))

	mock.Set(12)
	val, err := wrapper.GetSafe(context.Background())
	assert.Equal(t, ErrUnsuportedConversion, err)
	assert.Equal(t, "string", val)
}

func TestShutdown(t *testing.T) {
	mock := memory.NewConfig("1s")
	wrapper := NewDurationConfig(mock, time.Minute)
	assert.Equal(t, time.Second, wrapper.Get(context.Background()))

	wrapper.Shutdown()
	val, err := wrapper.GetSafe(context.Background())
	assert.Error(t, err)
	assert.Equal(t, time.Second, val)
}
