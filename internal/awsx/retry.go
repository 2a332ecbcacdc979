package awsx

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
)

const (
	maxAttempts = 3
	baseBackoff = 250 * time.Millisecond
)

// IsThrottle reports whether err is a throttling-class API error.
// Only these are worth retrying; access-denied and not-found are terminal.
func IsThrottle(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded":
		return true
	}
	return false
}

// Retry runs fn up to maxAttempts times, backing off between attempts.
// Non-throttling errors return immediately. The caller's context deadline
// aborts both the call and the backoff sleep.
func Retry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsThrottle(err) || attempt == maxAttempts {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return zero, lastErr
}
