package catalog

import (
	"errors"
	"fmt"
)

// Common errors returned by the catalog client.
var (
	// ErrRateLimited indicates the upstream rejected the request with a
	// rate-limit signal (HTTP 429). The fetcher retries these with backoff.
	ErrRateLimited = errors.New("catalog rate limit exceeded")

	// ErrUnavailable indicates a network or transport failure distinct from
	// rate limiting. Surfaced immediately, no retry budget consumed.
	ErrUnavailable = errors.New("catalog unavailable")

	// ErrInvalidResponse indicates the upstream returned a payload that
	// could not be parsed as an Atom feed.
	ErrInvalidResponse = errors.New("invalid response from catalog")
)

// APIError represents a non-429 HTTP error from the catalog.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// IsUnavailable returns true if the error indicates a transport failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
