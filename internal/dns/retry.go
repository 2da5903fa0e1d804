package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"k8s.io/client-go/util/retry"
)

// StatusError is returned by providers when the backend answers with an
// unexpected HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	// Err is the decoded backend error, when the body carried one.
	Err error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: rate limiting, server
// side failures and network errors.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// WithRetry runs fn, retrying transient failures with the client-go default
// backoff until ctx is done.
func WithRetry(ctx context.Context, fn func() error) error {
	return retry.OnError(retry.DefaultBackoff, func(err error) bool {
		return ctx.Err() == nil && IsTransient(err)
	}, fn)
}
