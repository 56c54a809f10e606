package clova

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryConfig configures the retry behavior for chat-completions calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError reports whether err is transient and should trigger a retry.
//
// Transient: network-level failures, request timeout (408), rate limiting
// (429), and server errors (5xx). Everything else fails immediately,
// including 4xx client errors, ErrContractViolation, and context
// cancellation.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrContractViolation) {
		return false
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return true
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	// Anything that failed before an HTTP status existed is a network
	// problem and worth retrying.
	var netErr net.Error
	return errors.As(err, &netErr)
}
