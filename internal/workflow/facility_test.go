package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-case-service/internal/logging"
)

func newTestLocal(opts Options) *Local {
	return NewLocal(opts, logging.NewNop())
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	fac := newTestLocal(Options{MaxAttempts: 3, Backoff: time.Millisecond})
	calls := 0
	err := fac.Execute(context.Background(), "noop", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	fac := newTestLocal(Options{MaxAttempts: 3, Backoff: time.Millisecond})
	calls := 0
	err := fac.Execute(context.Background(), "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	fac := newTestLocal(Options{MaxAttempts: 2, Backoff: time.Millisecond})
	boom := errors.New("db down")
	calls := 0
	err := fac.Execute(context.Background(), "doomed", func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "doomed")
}

func TestExecuteDoesNotRetryBusinessErrors(t *testing.T) {
	rejected := errors.New("precondition failed")
	fac := newTestLocal(Options{
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, rejected) },
	})
	calls := 0
	err := fac.Execute(context.Background(), "guarded", func(context.Context) error {
		calls++
		return rejected
	})
	require.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	fac := newTestLocal(Options{MaxAttempts: 10, Backoff: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := fac.Execute(ctx, "cancelled", func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestExecutePassesAttemptTimeout(t *testing.T) {
	fac := newTestLocal(Options{ActivityTimeout: 10 * time.Millisecond, MaxAttempts: 1})
	err := fac.Execute(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
