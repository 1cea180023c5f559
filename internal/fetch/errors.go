package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed fetch. Permanent errors are not worth retrying.
type Error struct {
	URL        string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable fetch failure.
func Transient(url string, err error) error {
	return &Error{URL: url, Err: err}
}

// Permanent wraps err as a fetch failure that retrying will not fix, such as
// a malformed payload.
func Permanent(url string, err error) error {
	return &Error{URL: url, Permanent: true, Err: err}
}

// statusError classifies a non-2xx response. 429 and 5xx are transient,
// every other status is permanent.
func statusError(url string, code int) error {
	return &Error{
		URL:        url,
		StatusCode: code,
		Permanent:  !(code == http.StatusTooManyRequests || code >= 500),
		Err:        fmt.Errorf("unexpected status: %s", http.StatusText(code)),
	}
}

// IsRetryable decides whether err warrants another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return !fe.Permanent
	}
	return true
}
