package services

import "errors"

// Service errors
var (
	// Load errors
	ErrNoSourceURL = errors.New("no source url configured or provided")
	ErrUnknownFile = errors.New("invalid file type")
	ErrFetchFailed = errors.New("source fetch failed")

	// Analytics errors
	ErrInvalidWindow = errors.New("invalid window: must be at least 1")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)
