package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryPolicy decides whether a failed completion is worth another request.
// Rate limits, server errors, timeouts and blank completions are retried;
// everything else is returned to the caller.
type retryPolicy struct {
	attempts int
	first    time.Duration
	ceiling  time.Duration
	wait     func(context.Context, time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: 5, first: time.Second, ceiling: 10 * time.Second, wait: sleepContext}
}

func (p retryPolicy) next(ctx context.Context, attempt int, err error) (time.Duration, bool) {
	if attempt >= p.attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var blank *blankCompletionError
	if errors.As(err, &blank) {
		return p.backoff(attempt), true
	}
	var status *statusError
	if errors.As(err, &status) {
		if status.Code != http.StatusRequestTimeout && status.Code != http.StatusTooManyRequests && status.Code < 500 {
			return 0, false
		}
		if hinted, ok := retryAfter(status.RetryAfter, time.Now()); ok {
			return p.clamp(hinted), true
		}
		return p.backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles the first delay per attempt.
func (p retryPolicy) backoff(attempt int) time.Duration {
	delay := p.first
	for i := 1; i < attempt && delay > 0 && delay < p.ceiling; i++ {
		delay *= 2
	}
	return p.clamp(delay)
}

func (p retryPolicy) clamp(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.ceiling > 0 && delay > p.ceiling {
		return p.ceiling
	}
	return delay
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func retryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second, secs >= 0
	}
	when, err := http.ParseTime(header)
	if err != nil || when.Before(now) {
		return 0, false
	}
	return when.Sub(now), true
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
