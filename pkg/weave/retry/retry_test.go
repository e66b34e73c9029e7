package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func instant(p Policy) Policy {
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	n, err := Do(context.Background(), instant(DefaultPolicy()), func(context.Context, int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	n, err := Do(context.Background(), instant(DefaultPolicy()), func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDoStopsAtCeiling(t *testing.T) {
	calls := 0
	var retried []int
	p := instant(DefaultPolicy())
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	n, err := Do(context.Background(), p, func(context.Context, int) error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []int{1, 2, 3, 4}, retried)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	calls := 0
	n, err := Do(context.Background(), instant(DefaultPolicy()), func(context.Context, int) error {
		calls++
		return Permanent(errTransient)
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, errTransient)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestDoRetryableClassifier(t *testing.T) {
	fatal := errors.New("fatal")
	p := instant(DefaultPolicy())
	p.Retryable = func(err error) bool { return errors.Is(err, errTransient) }

	calls := 0
	_, err := Do(context.Background(), p, func(_ context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			return errTransient
		}
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, DefaultPolicy(), func(context.Context, int) error {
		calls++
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)

	_, err = Do(ctx, DefaultPolicy(), func(context.Context, int) error {
		t.Fatal("op must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		full := min(p.BaseDelay<<(attempt-1), p.MaxDelay)
		for i := 0; i < 20; i++ {
			d := p.Backoff(attempt)
			assert.GreaterOrEqual(t, d, full/2, "attempt %d", attempt)
			assert.LessOrEqual(t, d, full, "attempt %d", attempt)
		}
	}
	assert.Equal(t, time.Duration(0), Policy{}.Backoff(3))
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
