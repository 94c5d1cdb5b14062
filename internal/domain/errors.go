package domain

import "errors"

// Sentinel errors for the realtime client core.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyConnected = errors.New("connection already exists for this session")
	ErrNotConnected     = errors.New("not connected")
	ErrNoSession        = errors.New("no active session")
	ErrSessionExpired   = errors.New("session expired")
)
