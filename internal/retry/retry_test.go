package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"quarry/ingest/internal/retry"
)

func TestPolicy_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("Succeeds First Try", func(t *testing.T) {
		attempts := 0
		err := retry.NewPolicy(3, time.Millisecond).Do(ctx, func() error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Succeeds After Transient Failures", func(t *testing.T) {
		attempts := 0
		err := retry.NewPolicy(3, time.Millisecond).Do(ctx, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("Budget Exhausted", func(t *testing.T) {
		attempts := 0
		wantErr := errors.New("still down")
		err := retry.NewPolicy(3, time.Millisecond).Do(ctx, func() error {
			attempts++
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 3, attempts)
	})

	t.Run("Permanent Stops Immediately", func(t *testing.T) {
		attempts := 0
		wantErr := errors.New("bad request")
		err := retry.NewPolicy(5, time.Millisecond).Do(ctx, func() error {
			attempts++
			return retry.Permanent(wantErr)
		})
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Context Cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		attempts := 0
		err := retry.NewPolicy(10, 50*time.Millisecond).Do(cancelled, func() error {
			attempts++
			cancel()
			return errors.New("transient")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestNewPolicy_MinimumOneAttempt(t *testing.T) {
	p := retry.NewPolicy(0, time.Millisecond)
	assert.Equal(t, 1, p.MaxAttempts)
}
