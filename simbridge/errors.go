package simbridge

import (
	"errors"
	"fmt"

	"github.com/prologic/simbridgefs/internal/httpx"
)

var (
	// ErrMissingParameter is returned before any request is made when a
	// required argument is empty.
	ErrMissingParameter = errors.New("simbridge: missing parameter")

	// ErrServiceUnavailable is returned by gated terrain operations until a
	// probe has found the terrain endpoints.
	ErrServiceUnavailable = errors.New("simbridge: endpoints unavailable")
)

// ServerError reports a non-success HTTP status from SimBridge.
type ServerError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("simbridge: %s: server error: status %d", e.Op, e.StatusCode)
}

func missing(what string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameter, what)
}

// asServerError converts an *httpx.HTTPError into a *ServerError for op and
// wraps anything else with the operation name.
func asServerError(op string, err error) error {
	var httpErr *httpx.HTTPError
	if errors.As(err, &httpErr) {
		return &ServerError{Op: op, StatusCode: httpErr.StatusCode, Body: httpErr.Body}
	}
	return fmt.Errorf("simbridge: %s: %w", op, err)
}
