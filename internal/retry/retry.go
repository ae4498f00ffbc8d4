// Package retry holds the single retry policy used for every outbound call
// (Rentok backend, LLM provider, supervisor classification).
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is returned by HTTP callers for non-2xx responses so the
// policy can tell transient server faults from client mistakes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Policy retries an operation with exponential backoff.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil means Transient.
	Retryable func(error) bool
}

// Default is 3 attempts total, 1s base doubling.
func Default() Policy {
	return Policy{Attempts: 3, Base: time.Second, Max: 8 * time.Second}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	if p.Max > 0 {
		eb.MaxInterval = p.Max
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		slog.Warn("retrying after transient failure", "op", op, "attempt", attempt, "wait", wait, "error", err)
	})
	return err
}

// Transient reports whether err is a timeout, connection problem, 429 or 5xx.
// 4xx responses and context cancellation are final.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	// A client-side request timeout also matches context.DeadlineExceeded.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsTransientStatus(se.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// IsTransientStatus is true for 429 and every 5xx code.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
