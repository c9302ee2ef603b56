package ai

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultRetryBase = 500 * time.Millisecond

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
}

func (p RetryPolicy) do(ctx context.Context, fn retry.RetryFunc) error {
	base := p.Base
	if base <= 0 {
		base = defaultRetryBase
	}
	return retry.Do(ctx, retry.WithMaxRetries(p.MaxRetries, retry.NewFibonacci(base)), fn)
}

// retryableStatus reports whether an upstream HTTP status is worth another attempt.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
