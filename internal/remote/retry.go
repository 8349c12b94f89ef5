package remote

import (
	"context"
	"log/slog"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// DefaultRetryAttempts is the number of retries after the first failure.
const DefaultRetryAttempts = 1

// RetryPolicy is the reconnect-and-retry wrapper applied to every remote
// operation. A failed attempt is retried only when Retryable accepts the
// error, and Reconnect runs before each retry.
type RetryPolicy struct {
	Attempts  int
	Retryable func(error) bool
	Reconnect func(ctx context.Context) error
	Logger    *slog.Logger
}

// PolicyFor returns the default policy for store: retry connection errors
// attempts times, re-initializing the client with its current credentials.
func PolicyFor(store types.RemoteStore, attempts int, logger *slog.Logger) RetryPolicy {
	return RetryPolicy{
		Attempts:  attempts,
		Retryable: store.IsConnectionError,
		Reconnect: func(ctx context.Context) error {
			return store.Initialize(ctx, store.Credentials(), false)
		},
		Logger: logger,
	}
}

// Do runs op, retrying per the policy. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	err := op(ctx)
	for attempt := 1; attempt <= p.Attempts && err != nil; attempt++ {
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		if p.Logger != nil {
			p.Logger.Warn("remote operation failed, reconnecting", "op", name, "attempt", attempt, "error", err)
		}
		if p.Reconnect != nil {
			if rerr := p.Reconnect(ctx); rerr != nil {
				if p.Logger != nil {
					p.Logger.Warn("reconnect failed", "op", name, "error", rerr)
				}
				continue
			}
		}
		err = op(ctx)
	}
	return err
}
