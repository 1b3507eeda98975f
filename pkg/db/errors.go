package db

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	// ErrNegativeDelta is returned when a balance mutation is requested with
	// a negative per-resource delta. Callers must express direction through
	// Increment/Decrement, not through signs.
	ErrNegativeDelta = errors.New("balance deltas must be non-negative")
)
