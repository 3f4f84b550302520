package keyspace

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryConnect runs connect with exponential backoff. Only the initial
// connection is retried; statement failures are never retried here.
func retryConnect(ctx context.Context, attempts uint64, connect func() error) error {
	if attempts == 0 {
		attempts = defaultConnectAttempts
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	return backoff.Retry(connect, backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx))
}
