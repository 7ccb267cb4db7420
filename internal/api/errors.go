package api

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a 404 from either upstream. It is a client error and
// is never retried.
var ErrNotFound = errors.New("not found")

// StatusError carries the HTTP status of a failed upstream call. The
// retry layer classifies on the code rather than the message text.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

func (e *StatusError) StatusCode() int { return e.Code }

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// errorBody is the shape the backend uses for error payloads.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
