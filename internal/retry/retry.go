package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the one retry schedule applied to every external call: a fixed
// attempt budget with exponential backoff. Transient embedding or store
// failures are retried within this budget and then surfaced; the caller
// decides what a final failure means.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func NewPolicy(maxAttempts int, baseDelay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do runs op until it succeeds, the attempt budget runs out, or the context
// is done. The error of the final attempt is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0

	schedule := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.Retry(op, schedule)
}

// Permanent marks an error as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
