//go:build !linux

package executor

func availableCPUs() []int { return nil }

func pinThread(int) error { return errPinUnsupported }
