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

// backoff doubles from base up to max for each failed attempt. A Retry-After
// hint replaces the computed delay but is still capped.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
	sleep    func(time.Duration)
}

func defaultBackoff() backoff {
	return backoff{attempts: 5, base: time.Second, max: 10 * time.Second}
}

// next reports whether another attempt should follow attempt (1-based) and
// how long to wait first.
func (b backoff) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= b.attempts || ctx.Err() != nil || !retryable(err) {
		return 0, false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return b.capped(statusErr.RetryAfter), true
	}
	delay := b.base
	for i := 1; i < attempt && delay < b.max; i++ {
		delay *= 2
	}
	return b.capped(delay), true
}

func (b backoff) capped(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if b.max > 0 && delay > b.max {
		return b.max
	}
	return delay
}

func (b backoff) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if b.sleep != nil {
		b.sleep(delay)
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

// retryable covers throttling, server faults, empty or malformed replies and
// network timeouts. Client errors and cancellation are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusRequestTimeout ||
			statusErr.Code == http.StatusTooManyRequests ||
			statusErr.Code >= http.StatusInternalServerError
	}
	var emptyErr *EmptyReplyError
	var malformedErr *malformedReplyError
	if errors.As(err, &emptyErr) || errors.As(err, &malformedErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}
