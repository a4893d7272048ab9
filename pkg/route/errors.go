package route

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoDestination is returned when no destination coordinates are set.
	ErrNoDestination = errors.New("route: destination missing")

	// ErrInvalidCoordinate is returned for non-numeric or out-of-range coordinates.
	ErrInvalidCoordinate = errors.New("route: invalid coordinate")

	// ErrMalformedPayload is returned when a payload is not a GeoJSON FeatureCollection.
	ErrMalformedPayload = errors.New("route: malformed payload")

	// ErrNoWaypoints is returned when a payload parses but holds no usable waypoint.
	ErrNoWaypoints = errors.New("route: no waypoints")

	// ErrNoRoute is returned when a provider finds no walking route.
	ErrNoRoute = errors.New("route: no route found")

	// ErrNoAPIKey is returned when a provider requires a key and none is set.
	ErrNoAPIKey = errors.New("route: API key required")

	// ErrCacheMiss is returned by Cache.Get when no fresh entry exists.
	ErrCacheMiss = errors.New("route: cache miss")
)

// APIError represents an error response from a routing API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("route [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("route [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
