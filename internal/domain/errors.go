package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// Ticketing gateway failures.
	ErrNotConnected       = errors.New("not_connected")
	ErrNoProject          = errors.New("no_project")
	ErrTokenRefreshFailed = errors.New("token_refresh_failed")

	// OAuth handshake failures. Unknown and expired states share one error.
	ErrInvalidHandshake      = errors.New("invalid or expired authorization state")
	ErrAuthorizationDenied   = errors.New("authorization denied by provider")
	ErrCodeAlreadyUsed       = errors.New("authorization code already used")
	ErrNoAccessibleResources = errors.New("no accessible resources")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")

	ErrProjectNotFound = errors.New("project not found")
	ErrStateConflict   = errors.New("support state was modified concurrently")
)

// ProviderError preserves a non-2xx response from the ticketing provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}
