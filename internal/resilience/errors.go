package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a data-source failure worth retrying: a rate-limit
// response, a gateway hiccup, a dropped connection. Anything else fails the
// call on the spot, so a registry GraphQL error or a plain 404 never burns
// retry attempts.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient, carrying the HTTP status
// that caused it when one exists.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ClassifyHTTPStatus wraps err as transient when the status is one the data
// sources emit under load. Every other status passes through unwrapped and
// fails the call immediately.
func ClassifyHTTPStatus(err error, statusCode int) error {
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(err, statusCode)
	}
	return err
}

// IsTransientHTTPStatus reports whether an HTTP status clears on its own.
// 429 is CoinGecko's public-tier rate limiter, 502-504 the registry gateway
// under load, 522/524 the Cloudflare frontend in front of DefiLlama timing
// out upstream.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504, 522, 524:
		return true
	}
	return false
}

// transientPatterns catches transport failures that arrive as flattened
// strings from wrapped HTTP client errors.
var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"connection timed out",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"unexpected eof",
	"server closed idle connection",
	"transport connection broken",
}

// IsTransient reports whether err is safe to retry: an explicit
// TransientError anywhere in the chain, a network timeout, or a dropped
// connection.
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
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
