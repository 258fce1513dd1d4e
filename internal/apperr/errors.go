// Package apperr defines the error taxonomy shared by the lifecycle engine,
// the geo cache, and the HTTP layer.
package apperr

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrFeatureDisabled is returned when the lifecycle system is switched off.
	ErrFeatureDisabled = eris.New("lifecycle feature disabled")
	// ErrInvalidInput is returned for missing or malformed ids or coordinates.
	ErrInvalidInput = eris.New("invalid input")
	// ErrNotFound is returned when a place id does not resolve.
	ErrNotFound = eris.New("not found")
	// ErrDuplicateAction is returned when a user already endorsed a place.
	ErrDuplicateAction = eris.New("duplicate action")
	// ErrRateLimited is returned for repeated actions within 24h or an exhausted quota.
	ErrRateLimited = eris.New("rate limited")
	// ErrProviderUnavailable is returned when an external lookup timed out or failed.
	ErrProviderUnavailable = eris.New("place provider unavailable")
	// ErrStoreUnavailable is returned when the backing store is unreachable.
	ErrStoreUnavailable = eris.New("store unavailable")
)

// userFacing lists the errors that are the caller's fault and never retried.
var userFacing = []error{
	ErrFeatureDisabled,
	ErrInvalidInput,
	ErrNotFound,
	ErrDuplicateAction,
	ErrRateLimited,
}

// IsUserFacing reports whether err belongs to the 4xx class of the taxonomy.
func IsUserFacing(err error) bool {
	for _, target := range userFacing {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Store marks err as a store failure while keeping its message for logs.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(ErrStoreUnavailable, "%s: %v", op, err)
}

// Provider marks err as a provider failure.
func Provider(err error, op string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(ErrProviderUnavailable, "%s: %v", op, err)
}
