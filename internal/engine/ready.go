package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// WaitReady polls the engine's health check until it succeeds or timeout elapses.
func WaitReady(ctx context.Context, e Engine, timeout time.Duration) error {
	return waitReady(ctx, e, timeout, time.Second)
}

func waitReady(ctx context.Context, e Engine, timeout, delay time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := uint(timeout / delay)
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			checkCtx, checkCancel := context.WithTimeout(ctx, 5*time.Second)
			defer checkCancel()
			return e.HealthCheck(checkCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %s not ready after %s: %w", ErrEngineUnavailable, e.Name(), timeout, err)
	}
	return nil
}
