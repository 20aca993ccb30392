package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// History errors
	ErrVersionConflict = errors.New("version allocation conflict")
	ErrInvalidAction   = errors.New("invalid history action")
	ErrInvalidEntity   = errors.New("invalid entity type")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)
