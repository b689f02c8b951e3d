//go:build !gpu

package device

import (
	"context"
	"fmt"
)

// OpenWebGPU is unavailable without -tags gpu.
func OpenWebGPU(context.Context, string) (Device, error) {
	return nil, fmt.Errorf("%w: built without webgpu support (build with -tags gpu)", ErrNoPlatformOrDevice)
}
