package reconcile

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

var (
	// ErrNoClient is the only error that aborts a whole batch.
	ErrNoClient = eris.New("no completion client configured")

	ErrMissingField  = eris.New("field not found in registry")
	ErrMissingInput  = eris.New("missing input text")
	ErrEmptyResponse = eris.New("empty response from completion service")
	ErrInvalidJSON   = eris.New("invalid JSON")
	ErrNoJSON        = eris.New("no JSON found in response")
	ErrWorkerPanic   = eris.New("worker panic")
)

// TransientError marks a failure that is safe to retry (429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ParseError reports completion output that could not be read as JSON.
// Raw keeps the offending text for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return "parse completion: " + e.Err.Error() + ": " + raw
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTransient returns true if err carries a TransientError or matches a
// common network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports status codes worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// errorKind labels an error for logs.
func errorKind(err error) string {
	var pe *ParseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return "parse"
	case IsTransient(err):
		return "transient"
	}
	return "permanent"
}
