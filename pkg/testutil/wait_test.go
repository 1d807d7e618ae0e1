package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitFor(t *testing.T) {
	var calls int32
	require.NoError(t, WaitForTimeout(time.Second, time.Millisecond, func() bool {
		return atomic.AddInt32(&calls, 1) == 3
	}))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	err := WaitForTimeout(20*time.Millisecond, 5*time.Millisecond, func() bool {
		return false
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WaitFor(ctx, time.Hour, func() bool { return false })
	assert.True(t, errors.Is(err, context.Canceled))
}
