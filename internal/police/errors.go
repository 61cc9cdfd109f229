package police

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid police client config")

// HTTPError is returned when the API answers with a non-2xx status after
// retries are exhausted.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("police api %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("police api %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// ValidationError describes one array element that did not match the shape
// of its target type. The element is dropped from the result.
type ValidationError struct {
	Index int
	Type  string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("failed to map '%s' at index '%d' returned from Police API: %v", e.Type, e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
