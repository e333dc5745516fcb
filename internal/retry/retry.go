package retry

import (
	"context"
	"time"
)

const maxBackoff = 30 * time.Second

// Do runs fn up to attempts times with exponential backoff between
// failures. The last error is returned; context cancellation cuts the
// wait short.
func Do(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Second
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffExp(i, base)):
		}
	}
	return err
}

func backoffExp(attempt int, base time.Duration) time.Duration {
	d := base << attempt // base, 2*base, 4*base...
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}
