package portal

import (
	"errors"
	"fmt"
)

// ErrRateLimited signals a remote quota hit somewhere below a FetchResult.
var ErrRateLimited = errors.New("portal rate limit reached")

// ErrNotFound signals that a target/product pair has no remote data.
var ErrNotFound = errors.New("no data for target")

// ErrEmptyResult is returned by parsers handed a payload with zero samples.
var ErrEmptyResult = errors.New("empty result set")

// AuthError reports a rejected login or credential.
type AuthError struct {
	Portal string
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Portal, e.Detail)
}

// MalformedError reports a payload that failed to parse. It aborts the
// affected target only; the fetch loop skips and moves on.
type MalformedError struct {
	Detail string
	Cause  error
}

func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("malformed payload: %s", e.Detail)
}

func (e *MalformedError) Unwrap() error { return e.Cause }

// Malformed builds a MalformedError with printf-style detail.
func Malformed(cause error, format string, args ...any) *MalformedError {
	return &MalformedError{Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// IsMalformed reports whether err is (or wraps) a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
