package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ProviderError is an error returned by the text-generation provider,
// carrying the HTTP status so callers can distinguish transient rate limits
// and outages from permanent caller errors.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// NewProviderError builds a ProviderError from an HTTP status and body.
func NewProviderError(statusCode int, message string) *ProviderError {
	return &ProviderError{StatusCode: statusCode, Message: message}
}

// IsRetryable reports whether an error is safe to retry: provider 429/5xx
// responses and transport-level failures. Any other 4xx is a permanent
// caller error and is surfaced immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return IsRetryableStatus(pe.StatusCode)
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

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"unexpected eof",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryableStatus reports whether an HTTP status indicates a transient
// server-side condition.
func IsRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == 408, statusCode == 429:
		return true
	case statusCode >= 500 && statusCode <= 599:
		return true
	default:
		return false
	}
}
