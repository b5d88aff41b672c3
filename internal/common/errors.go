// Package common defines shared constants and sentinel errors used across
// client and server layers of PNR Watch. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Sync protocol errors.
	ErrVersionConflict = errors.New("version conflict")
	ErrUnavailable     = errors.New("server unavailable")
	ErrRejected        = errors.New("request rejected")

	// Storage medium errors.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrWriteFailed   = errors.New("local write failed")

	// Validation errors.
	ErrInvalidPNR     = errors.New("invalid pnr")
	ErrInvalidOptions = errors.New("invalid options")

	// Auth errors (invalid or malformed token).
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
