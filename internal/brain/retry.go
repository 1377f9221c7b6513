package brain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultTransient lists error fragments treated as transient tool failures.
var DefaultTransient = []string{
	"EBUSY",
	"ETIMEDOUT",
	"EAGAIN",
	"ECONNRESET",
	"timed out",
	"timeout",
	"resource temporarily unavailable",
	"connection reset",
	"connection refused",
}

// RetryPolicy controls re-execution of tools that failed transiently.
type RetryPolicy struct {
	// Attempts is the number of extra attempts after the first.
	Attempts int
	Delay    time.Duration
	// Transient holds case-insensitive substrings of retryable errors.
	Transient []string
}

// DefaultRetryPolicy retries twice, 300ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  2,
		Delay:     300 * time.Millisecond,
		Transient: append([]string(nil), DefaultTransient...),
	}
}

// IsTransient reports whether err should be retried.
func (p RetryPolicy) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range p.Transient {
		if frag != "" && strings.Contains(msg, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}
