package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/lib/pq"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// ConnectionError reports that the remote could not be reached or refused
// the session. It matches types.ErrConnection.
type ConnectionError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: connection failed (http %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Is(target error) bool {
	return target == types.ErrConnection
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HTTPError is a non-transient error response from the REST endpoint.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// IsConnectionError reports whether err is a connection-class failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrConnection) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "28", "57":
			return true
		}
	}
	return false
}

// connectionStatus reports whether an HTTP status means the session or
// the service is unavailable rather than the request being wrong.
func connectionStatus(code int) bool {
	switch {
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

// classify wraps connection-class failures in a ConnectionError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if IsConnectionError(err) {
		return &ConnectionError{Op: op, Err: err}
	}
	return err
}
