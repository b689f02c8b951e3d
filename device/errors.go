package device

import (
	"errors"
	"fmt"
)

var (
	ErrNoPlatformOrDevice     = errors.New("no compute platform or device")
	ErrContextCreationFailed  = errors.New("device context creation failed")
	ErrCompile                = errors.New("kernel compile failed")
	ErrBufferAllocationFailed = errors.New("device buffer allocation failed")
	ErrDispatchFailed         = errors.New("kernel dispatch failed")
	ErrReadbackFailed         = errors.New("result readback failed")
	ErrTooManyThreads         = errors.New("device thread count exceeds limit")
)

var kinds = []error{
	ErrNoPlatformOrDevice,
	ErrContextCreationFailed,
	ErrCompile,
	ErrBufferAllocationFailed,
	ErrDispatchFailed,
	ErrReadbackFailed,
	ErrTooManyThreads,
}

// Unavailable reports whether err came from the device path. Such errors
// are absorbed by falling back to the CPU.
func Unavailable(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// classify tags err with kind unless it already carries a device error kind.
func classify(kind, err error) error {
	if err == nil || Unavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
