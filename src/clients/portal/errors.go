package portal

import (
	"errors"
	"fmt"
	"net/http"
)

const codeCSRFRejected = "EBADCSRFTOKEN"

var (
	ErrUnauthenticated = errors.New("portal: unauthenticated")
	ErrCSRFRejected    = errors.New("portal: csrf token rejected")
	ErrForbidden       = errors.New("portal: forbidden")
	ErrNotFound        = errors.New("portal: not found")

	// ErrCSRFRetryExhausted is returned when a request is rejected again
	// after the token was refreshed. The caller should re-authenticate or
	// retry later; the client will not loop.
	ErrCSRFRetryExhausted = errors.New("portal: csrf token rejected after refresh")
)

// APIError is a non-2xx response. It unwraps to one of the sentinel errors
// when the status or code maps to one.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("portal: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("portal: http %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusForbidden && e.Code == codeCSRFRejected:
		return ErrCSRFRejected
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}
