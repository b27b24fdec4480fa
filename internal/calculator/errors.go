package calculator

import "errors"

var (
	// ErrInvalidPackCount is returned when fewer than one pack or more than
	// MaxPackCount packs are requested.
	ErrInvalidPackCount = errors.New("pack count must be a positive integer")
	// ErrUnknownSize is returned when a size is not one of the fixed size labels.
	ErrUnknownSize = errors.New("unknown size label")
	// ErrMissingColor is returned when no accent color is given.
	ErrMissingColor = errors.New("accent color is required")
)
