package testutil

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// WaitFor polls condition every interval until it holds or ctx is done.
func WaitFor(ctx context.Context, interval time.Duration, condition func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "condition not met")
		case <-ticker.C:
		}
	}
}

// WaitForTimeout is WaitFor bounded by timeout.
func WaitForTimeout(timeout, interval time.Duration, condition func() bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return WaitFor(ctx, interval, condition)
}
