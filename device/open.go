package device

import (
	"context"
	"fmt"

	"github.com/openfluke/headcount/config"
)

// Open returns the Opener for the configured backend.
func Open(cfg config.Device) Opener {
	switch cfg.Backend {
	case config.BackendEmulated:
		return func(context.Context) (Device, error) {
			return NewEmulator(), nil
		}
	case config.BackendNone:
		return func(context.Context) (Device, error) {
			return nil, fmt.Errorf("%w: device backend disabled", ErrNoPlatformOrDevice)
		}
	default:
		return func(ctx context.Context) (Device, error) {
			return OpenWebGPU(ctx, cfg.Adapter)
		}
	}
}

// Detect opens the configured backend and reports what it found.
func Detect(ctx context.Context, cfg config.Device) (Info, error) {
	dev, err := Open(cfg)(ctx)
	if err != nil {
		return Info{}, classify(ErrNoPlatformOrDevice, err)
	}
	defer dev.Close()
	return dev.Info(), nil
}
