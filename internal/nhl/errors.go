package nhl

import "errors"

var (
	// ErrMalformedSnapshot is returned when a snapshot is missing required fields
	// or does not belong to the game it is applied to.
	ErrMalformedSnapshot = errors.New("malformed game snapshot")
	ErrUnknownTeam       = errors.New("unknown team")
	ErrUnknownStatus     = errors.New("unknown game status")
)
