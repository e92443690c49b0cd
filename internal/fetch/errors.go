package fetch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrThrottleExhausted means throttling persisted down to a batch size of one.
	ErrThrottleExhausted = errors.New("throttled at minimum batch size")
	// ErrUnsupported means the item kind has no such auxiliary data.
	ErrUnsupported = errors.New("auxiliary kind not supported for item kind")
)

// ThrottledError is returned by an Executor when the remote API rejected the
// request for rate-limit reasons.
type ThrottledError struct {
	StatusCode int           // HTTP status, 0 when reported in the GraphQL payload
	RetryAfter time.Duration // Server hint, 0 if absent
	Message    string
}

func (e *ThrottledError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limited"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("throttled (HTTP %d): %s", e.StatusCode, msg)
	}
	return "throttled: " + msg
}

// IsThrottled reports whether err wraps a ThrottledError.
func IsThrottled(err error) bool {
	var te *ThrottledError
	return errors.As(err, &te)
}
