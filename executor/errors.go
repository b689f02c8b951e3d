package executor

import "errors"

var (
	// ErrThreadSpawnFailed is returned when a partition could not be computed
	// by its worker nor by the inline retry.
	ErrThreadSpawnFailed = errors.New("worker failed")

	// ErrCanceled wraps the context error of a canceled run.
	ErrCanceled = errors.New("run canceled")

	errPinUnsupported = errors.New("cpu pinning not supported on this platform")
)
