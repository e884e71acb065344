package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound = errors.New("resource not found")

	// Challenge consumption errors. The verifier maps these to typed
	// outcomes; they never surface to HTTP callers as raw errors.
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeConsumed = errors.New("challenge already consumed")

	// ErrStorageUnavailable covers every backing-store fault. The service
	// fails closed on it: callers see a short block, never a bypass.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
