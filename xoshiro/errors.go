package xoshiro

import "errors"

var (
	// ErrEntropyUnavailable is returned when the system randomness source
	// cannot produce seed material.
	ErrEntropyUnavailable = errors.New("entropy unavailable")

	// ErrSeedLength is returned when a seed does not match the lane count.
	ErrSeedLength = errors.New("invalid seed length")

	// ErrLanes is returned for an unsupported lane count.
	ErrLanes = errors.New("unsupported lane count")
)
