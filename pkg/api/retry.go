package api

import "time"

// RetryPolicy controls how an agent node is re-attempted when its
// capability invocation fails. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Only capability failures are retried; a timeout is terminal unless
// RetryOnTimeout is set.
type RetryPolicy struct {
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. If zero,
	// retries happen immediately.
	InitialBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt. Values <= 0 default
	// to 2.0 (standard exponential backoff).
	BackoffMultiplier float64

	// MaxBackoff caps the delay; <= 0 means no cap.
	MaxBackoff time.Duration

	// RetryOnTimeout opts a node into retrying after a timeout. Off by
	// default: a timed-out capability may still be running remotely.
	RetryOnTimeout bool
}
