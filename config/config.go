// Package config holds the tunable thresholds and sizing knobs of the
// dispatch engine. Values come from Default, an optional YAML file and
// HEADCOUNT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// HEADCOUNT_LARGE_THRESHOLD or HEADCOUNT_DEVICE_BACKEND.
const EnvPrefix = "HEADCOUNT"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Device backends.
const (
	BackendAuto     = "auto"
	BackendWebGPU   = "webgpu"
	BackendEmulated = "emulated"
	BackendNone     = "none"
)

// Config is the full engine configuration.
type Config struct {
	// SmallThreshold is the flip count below which the CPU path runs inline
	// on the calling goroutine.
	SmallThreshold uint64 `yaml:"small_threshold" mapstructure:"small_threshold"`

	// LargeThreshold is the flip count at or above which the device path is
	// attempted.
	LargeThreshold uint64 `yaml:"large_threshold" mapstructure:"large_threshold"`

	// Workers is the CPU worker count. Zero means available parallelism.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Lanes is the generator lane width (4 or 8). Zero selects from CPU
	// features.
	Lanes int `yaml:"lanes" mapstructure:"lanes"`

	// PinWorkers binds each worker to its own CPU where supported.
	PinWorkers bool `yaml:"pin_workers" mapstructure:"pin_workers"`

	// ChunkBits is the number of bits a worker processes between
	// cancellation checks and progress updates.
	ChunkBits uint64 `yaml:"chunk_bits" mapstructure:"chunk_bits"`

	// ProgressInterval is the minimum time between progress log records.
	ProgressInterval time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"`

	Device Device `yaml:"device" mapstructure:"device"`
}

// Device configures the offload path.
type Device struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Adapter, if set, selects the first adapter whose name or vendor
	// contains it (case-insensitive).
	Adapter         string        `yaml:"adapter" mapstructure:"adapter"`
	ComputeUnits    uint32        `yaml:"compute_units" mapstructure:"compute_units"`
	Occupancy       uint32        `yaml:"occupancy" mapstructure:"occupancy"`
	WorkgroupSize   uint32        `yaml:"workgroup_size" mapstructure:"workgroup_size"`
	MaxThreads      uint64        `yaml:"max_threads" mapstructure:"max_threads"`
	ReadbackTimeout time.Duration `yaml:"readback_timeout" mapstructure:"readback_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SmallThreshold:   10_000_000,
		LargeThreshold:   100_000_000_000,
		ChunkBits:        1 << 28,
		ProgressInterval: time.Second,
		Device: Device{
			Backend:         BackendAuto,
			Occupancy:       64 * 8,
			WorkgroupSize:   64,
			MaxThreads:      1 << 21,
			ReadbackTimeout: time.Minute,
		},
	}
}

// NewViper returns a viper instance seeded with Default and reading
// HEADCOUNT_* variables. Callers may bind flags on top before LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("small_threshold", d.SmallThreshold)
	v.SetDefault("large_threshold", d.LargeThreshold)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("lanes", d.Lanes)
	v.SetDefault("pin_workers", d.PinWorkers)
	v.SetDefault("chunk_bits", d.ChunkBits)
	v.SetDefault("progress_interval", d.ProgressInterval)
	v.SetDefault("device.backend", d.Device.Backend)
	v.SetDefault("device.adapter", d.Device.Adapter)
	v.SetDefault("device.compute_units", d.Device.ComputeUnits)
	v.SetDefault("device.occupancy", d.Device.Occupancy)
	v.SetDefault("device.workgroup_size", d.Device.WorkgroupSize)
	v.SetDefault("device.max_threads", d.Device.MaxThreads)
	v.SetDefault("device.readback_timeout", d.Device.ReadbackTimeout)
	return v
}

// Load reads a YAML file over Default and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	return LoadFrom(NewViper(), path)
}

// LoadFrom reads path (if set) into v, decodes the merged view and
// validates it.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the constraints the engine relies on.
func (c Config) Validate() error {
	switch {
	case c.SmallThreshold == 0:
		return fmt.Errorf("%w: small_threshold must be positive", ErrInvalidConfig)
	case c.SmallThreshold >= c.LargeThreshold:
		return fmt.Errorf("%w: small_threshold (%d) must be below large_threshold (%d)",
			ErrInvalidConfig, c.SmallThreshold, c.LargeThreshold)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	case c.Lanes != 0 && c.Lanes != 4 && c.Lanes != 8:
		return fmt.Errorf("%w: lanes must be 0, 4 or 8, got %d", ErrInvalidConfig, c.Lanes)
	case c.Device.Occupancy == 0:
		return fmt.Errorf("%w: device.occupancy must be positive", ErrInvalidConfig)
	case c.Device.WorkgroupSize == 0:
		return fmt.Errorf("%w: device.workgroup_size must be positive", ErrInvalidConfig)
	case c.Device.MaxThreads < uint64(c.Device.WorkgroupSize):
		return fmt.Errorf("%w: device.max_threads must hold at least one workgroup", ErrInvalidConfig)
	}
	switch c.Device.Backend {
	case BackendAuto, BackendWebGPU, BackendEmulated, BackendNone:
	default:
		return fmt.Errorf("%w: unknown device.backend %q", ErrInvalidConfig, c.Device.Backend)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
