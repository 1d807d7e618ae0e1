package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-solana-client/pkg/config"
)

func TestConfig(t *testing.T) {
	ctx := context.Background()

	c := NewConfig(nil)
	_, err := c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.Set(time.Second)
	val, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, val)

	c.SetError(assert.AnError)
	_, err = c.Get(ctx)
	assert.Equal(t, assert.AnError, err)

	c.SetError(nil)
	val, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, val)

	c.Clear()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.Shutdown()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrShutdown, err)

	c.Set("ignored")
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrShutdown, err)
}

func TestConfig_ZeroValues(t *testing.T) {
	for _, value := range []interface{}{0, "", time.Duration(0), uint64(0), false} {
		val, err := NewConfig(value).Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, value, val)
	}
}

func TestConfig_Concurrent(t *testing.T) {
	c := NewConfig(0)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i)
			_, err := c.Get(context.Background())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	val, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, val)
}
