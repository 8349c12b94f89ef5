package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func TestRetryPolicy_Do(t *testing.T) {
	connErr := &ConnectionError{Op: "load", Err: errors.New("reset")}
	otherErr := errors.New("bad payload")

	tests := []struct {
		name           string
		attempts       int
		results        []error
		wantErr        error
		wantCalls      int
		wantReconnects int
	}{
		{"success first try", 1, []error{nil}, nil, 1, 0},
		{"connection error then success", 1, []error{connErr, nil}, nil, 2, 1},
		{"connection error twice", 1, []error{connErr, connErr}, types.ErrConnection, 2, 1},
		{"non retryable error", 1, []error{otherErr, nil}, otherErr, 1, 0},
		{"zero attempts never retries", 0, []error{connErr, nil}, types.ErrConnection, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, reconnects := 0, 0
			p := RetryPolicy{
				Attempts:  tt.attempts,
				Retryable: IsConnectionError,
				Reconnect: func(context.Context) error { reconnects++; return nil },
			}
			err := p.Do(context.Background(), "load", func(context.Context) error {
				err := tt.results[calls]
				calls++
				return err
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantReconnects, reconnects)
		})
	}
}

func TestRetryPolicy_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := RetryPolicy{Attempts: 3, Retryable: func(error) bool { return true }}
	err := p.Do(ctx, "save", func(context.Context) error {
		calls++
		cancel()
		return types.ErrConnection
	})
	assert.ErrorIs(t, err, types.ErrConnection)
	assert.Equal(t, 1, calls)
}

func TestPolicyFor_ReconnectsWithCurrentCredentials(t *testing.T) {
	ctx := context.Background()
	c, server := newMemoryClient(t, "alice")
	server.FailNext(OpLoad, &ConnectionError{Op: OpLoad, Err: errors.New("dropped")})

	p := PolicyFor(c, DefaultRetryAttempts, nil)
	err := p.Do(ctx, OpLoad, func(ctx context.Context) error {
		_, err := c.LoadData(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, server.Calls(OpLoad))
	assert.Equal(t, "alice", c.Credentials().UserID)
}
