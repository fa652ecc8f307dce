package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() upsertRetry {
	return upsertRetry{maxRetries: 2, initialDelay: time.Millisecond, maxDelay: 4 * time.Millisecond}
}

func TestUpsertRetry_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := fastRetry().do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUpsertRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	persistent := errors.New("down")
	err := fastRetry().do(context.Background(), func() error {
		calls++
		return persistent
	})
	require.ErrorIs(t, err, persistent)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestUpsertRetry_FirstTrySuccessSkipsBackoff(t *testing.T) {
	calls := 0
	err := fastRetry().do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUpsertRetry_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastRetry().do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
