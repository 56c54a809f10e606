package clova

import (
	"errors"
	"fmt"
)

// ErrContractViolation is returned when the API answered with HTTP 200 but
// the body does not match the documented response shape. Never retried;
// retrying a malformed success cannot improve the outcome.
var ErrContractViolation = errors.New("clova: response violates API contract")

// apiError is a non-2xx HTTP response from the API. The status code drives
// transient classification in the retry loop.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("clova: API returned status %d: %s", e.StatusCode, e.Body)
}
