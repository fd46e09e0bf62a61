package pipeline

import "errors"

// NonRetryableError marks task failures that should not be retried by the
// dispatcher: deterministic failures (bad config, terraform errors already
// reported to the PR) and malformed comments whose cause a retry cannot fix.
type NonRetryableError struct {
	msg string
}

func (e *NonRetryableError) Error() string {
	return e.msg
}

// NewNonRetryable wraps a message as a non-retryable failure.
func NewNonRetryable(msg string) error {
	return &NonRetryableError{msg: msg}
}

// IsNonRetryable reports whether the provided error originated from a
// non-retryable failure.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}

	var target *NonRetryableError
	return errors.As(err, &target)
}
