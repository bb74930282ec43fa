package nv

import (
	"context"
	"time"
)

// VerifyOptions configures the read-back after an NV write.
type VerifyOptions struct {
	// Attempts is how many read-backs are made before reporting a mismatch.
	// Default: 1
	Attempts int

	// RetryDelay is the delay between read-backs.
	// Default: 200ms
	RetryDelay time.Duration

	// UseExponentialBackoff doubles RetryDelay after each attempt, up to
	// MaxRetryDelay.
	UseExponentialBackoff bool

	// MaxRetryDelay caps the backoff.
	// Default: 2s
	MaxRetryDelay time.Duration
}

// DefaultVerifyOptions reads back once.
func DefaultVerifyOptions() *VerifyOptions {
	return &VerifyOptions{
		Attempts:      1,
		RetryDelay:    200 * time.Millisecond,
		MaxRetryDelay: 2 * time.Second,
	}
}

// verifyWithRetry calls read until it reports a match, an error, or the
// attempts run out. It returns the last payload read.
func verifyWithRetry(ctx context.Context, opts *VerifyOptions, read func(context.Context) ([]byte, bool, error)) ([]byte, error) {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.RetryDelay

	var last []byte
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(delay):
			}
			if opts.UseExponentialBackoff {
				delay *= 2
				if opts.MaxRetryDelay > 0 && delay > opts.MaxRetryDelay {
					delay = opts.MaxRetryDelay
				}
			}
		}

		data, ok, err := read(ctx)
		if err != nil {
			return data, err
		}
		last = data
		if ok {
			return data, nil
		}
	}
	return last, nil
}
