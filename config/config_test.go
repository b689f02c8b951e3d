package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Less(t, cfg.SmallThreshold, cfg.LargeThreshold)
	assert.Equal(t, uint32(512), cfg.Device.Occupancy)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero small":        func(c *Config) { c.SmallThreshold = 0 },
		"small above large": func(c *Config) { c.SmallThreshold = c.LargeThreshold },
		"negative workers":  func(c *Config) { c.Workers = -1 },
		"bad lanes":         func(c *Config) { c.Lanes = 6 },
		"zero occupancy":    func(c *Config) { c.Device.Occupancy = 0 },
		"zero workgroup":    func(c *Config) { c.Device.WorkgroupSize = 0 },
		"tiny max threads":  func(c *Config) { c.Device.MaxThreads = 1 },
		"unknown backend":   func(c *Config) { c.Device.Backend = "cuda" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headcount.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
small_threshold: 1000
large_threshold: 5000
lanes: 8
device:
  backend: emulated
  readback_timeout: 5s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), cfg.SmallThreshold)
	assert.Equal(t, uint64(5000), cfg.LargeThreshold)
	assert.Equal(t, 8, cfg.Lanes)
	assert.Equal(t, BackendEmulated, cfg.Device.Backend)
	assert.Equal(t, 5*time.Second, cfg.Device.ReadbackTimeout)
	// Untouched fields keep their defaults.
	assert.Equal(t, uint32(64), cfg.Device.WorkgroupSize)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("small_threshold: 10\nlarge_threshold: 5\n"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HEADCOUNT_LARGE_THRESHOLD", "123456789")
	t.Setenv("HEADCOUNT_WORKERS", "3")
	t.Setenv("HEADCOUNT_PIN_WORKERS", "true")
	t.Setenv("HEADCOUNT_DEVICE_BACKEND", "none")
	t.Setenv("HEADCOUNT_DEVICE_COMPUTE_UNITS", "40")
	t.Setenv("HEADCOUNT_PROGRESS_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), cfg.LargeThreshold)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.PinWorkers)
	assert.Equal(t, BackendNone, cfg.Device.Backend)
	assert.Equal(t, uint32(40), cfg.Device.ComputeUnits)
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressInterval)
}

func TestLoadEnvUnderscoredNumbers(t *testing.T) {
	t.Setenv("HEADCOUNT_CHUNK_BITS", "1_048_576")
	t.Setenv("HEADCOUNT_DEVICE_MAX_THREADS", "0x100000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), cfg.ChunkBits)
	assert.Equal(t, uint64(1<<20), cfg.Device.MaxThreads)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headcount.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\ndevice:\n  backend: emulated\n"), 0o644))
	t.Setenv("HEADCOUNT_DEVICE_BACKEND", "none")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, BackendNone, cfg.Device.Backend)
}

func TestLoadEnvRejectsGarbage(t *testing.T) {
	t.Setenv("HEADCOUNT_LANES", "eight")
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Lanes = 4
	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "large_threshold: 100000000000")

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
