package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed fault raised for every non-2xx platform response.
// It always carries the numeric status; callers branch on the predicates
// below, never on message text.
type Error struct {
	// Status is the HTTP-style status code the platform answered with.
	Status int

	// Message is the platform's error message, when one was decodable.
	Message string

	// Method and Path identify the call for diagnostics.
	Method string
	Path   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("platform %s %s: %d", e.Method, e.Path, e.Status)
}

// IsNotFound reports whether err is a platform 404. The referenced entity
// should be treated as gone.
func IsNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusNotFound
}

// IsConflict reports whether err is a platform 409: the version sent was
// stale and the caller must re-fetch before retrying.
func IsConflict(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusConflict
}

// IsPaymentRequired reports whether err is a platform 402, raised when a
// payment claim cannot be satisfied.
func IsPaymentRequired(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusPaymentRequired
}

// IsServerError reports whether err is a 5xx answer. These are the only
// platform faults a caller may reasonably treat as transient.
func IsServerError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status >= 500
}
