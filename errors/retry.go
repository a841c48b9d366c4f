package errors

import (
	"context"
	"time"
)

// RetryConfig configures retry behavior. Delays are fixed between attempts;
// the payment paths deliberately do not use exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryConfig matches the bounded retry used on the ledger read and
// storage write paths: 3 attempts, 1000 ms apart.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Second,
	}
}

// RetryFunc is a function that can be retried.
type RetryFunc func() error

// RetryWithConfig retries fn until it succeeds, returns a non-retryable
// error, or exhausts the attempt budget. The last error is returned wrapped
// with the attempt count.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.Delay):
		}
	}

	return WrapCoded(lastErr, ErrCodeInternal, "maximum retry attempts exceeded").
		WithContext("attempts", config.MaxAttempts)
}

// Retry retries fn with the default configuration.
func Retry(ctx context.Context, fn RetryFunc) error {
	return RetryWithConfig(ctx, fn, DefaultRetryConfig())
}

func isRetryable(err error) bool {
	var coded *Error
	if As(err, &coded) {
		return coded.IsRetryable()
	}
	// Uncoded errors from collaborators (RPC transport, sqlite) are treated
	// as transient.
	return true
}
