package dispatch

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/device"
	"github.com/openfluke/headcount/executor"
	"github.com/openfluke/headcount/flip"
	"github.com/openfluke/headcount/logging"
	"github.com/openfluke/headcount/xoshiro"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SmallThreshold = 10_000
	cfg.LargeThreshold = 1 << 20
	cfg.Workers = 4
	cfg.Lanes = 4
	cfg.ProgressInterval = 0
	cfg.Device.Backend = config.BackendNone
	cfg.Device.ComputeUnits = 4
	cfg.Device.Occupancy = 64
	return cfg
}

func seeded(p executor.Partition, _ int, lanes int) (flip.Generator, error) {
	seed := make([]byte, xoshiro.SeedSize(lanes))
	for i := 0; i < len(seed); i += 8 {
		binary.LittleEndian.PutUint64(seed[i:], uint64(p.Worker)<<32|uint64(i+1))
	}
	return xoshiro.New(lanes, seed)
}

func bufferLogger(buf *bytes.Buffer) *logging.Logger {
	return logging.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func emulated(context.Context) (device.Device, error) {
	return device.NewEmulator(), nil
}

func withinSigmas(t *testing.T, count, heads uint64) {
	t.Helper()
	sigma := math.Sqrt(float64(count)) / 2
	assert.InDelta(t, float64(count)/2, float64(heads), 6*sigma, "heads=%d count=%d", heads, count)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SmallThreshold = cfg.LargeThreshold
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRoute(t *testing.T) {
	d, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, PathCPU, d.Route(0))
	assert.Equal(t, PathCPU, d.Route(1<<20-1))
	assert.Equal(t, PathDevice, d.Route(1<<20))
}

func TestCountZero(t *testing.T) {
	d, err := New(testConfig(), WithDeviceOptions(device.WithOpener(emulated)))
	require.NoError(t, err)

	for _, run := range []func(context.Context, uint64) (uint64, error){d.Count, d.CountCPU, d.CountDevice} {
		heads, err := run(context.Background(), 0)
		require.NoError(t, err)
		assert.Zero(t, heads)
	}
}

func TestSmallCountSkipsDevice(t *testing.T) {
	opened := false
	d, err := New(testConfig(), WithDeviceOptions(device.WithOpener(func(ctx context.Context) (device.Device, error) {
		opened = true
		return emulated(ctx)
	})))
	require.NoError(t, err)

	heads, err := d.Count(context.Background(), 500_000)
	require.NoError(t, err)
	assert.LessOrEqual(t, heads, uint64(500_000))
	assert.False(t, opened)
}

func TestFallbackUsesFullCount(t *testing.T) {
	var buf bytes.Buffer
	d, err := New(testConfig(),
		WithLogger(bufferLogger(&buf)),
		WithExecutorOptions(executor.WithGenerators(seeded)),
	)
	require.NoError(t, err)

	const count = 1<<20 + 12_345
	heads, err := d.Count(context.Background(), count)
	require.NoError(t, err)

	cpu, err := d.CountCPU(context.Background(), count)
	require.NoError(t, err)
	assert.Equal(t, cpu, heads)
	assert.Contains(t, buf.String(), "falling back to cpu")
	assert.Contains(t, buf.String(), device.ErrNoPlatformOrDevice.Error())
}

func TestFallbackDistribution(t *testing.T) {
	d, err := New(testConfig())
	require.NoError(t, err)

	const count = 10_000_000
	for trial := 0; trial < 3; trial++ {
		heads, err := d.Count(context.Background(), count)
		require.NoError(t, err)
		withinSigmas(t, count, heads)
	}
}

func TestDevicePath(t *testing.T) {
	var buf bytes.Buffer
	d, err := New(testConfig(),
		WithLogger(bufferLogger(&buf)),
		WithDeviceOptions(device.WithOpener(emulated)),
	)
	require.NoError(t, err)

	const count = 1 << 22
	heads, err := d.Count(context.Background(), count)
	require.NoError(t, err)
	withinSigmas(t, count, heads)
	assert.Contains(t, buf.String(), `"path":"device"`)
	assert.NotContains(t, buf.String(), "falling back")
}

func TestCountDeviceBelowThreshold(t *testing.T) {
	d, err := New(testConfig(), WithDeviceOptions(device.WithOpener(emulated)))
	require.NoError(t, err)

	const count = 300_001
	heads, err := d.CountDevice(context.Background(), count)
	require.NoError(t, err)
	withinSigmas(t, count, heads)
}

func TestCanceledDoesNotFallBack(t *testing.T) {
	var buf bytes.Buffer
	d, err := New(testConfig(), WithLogger(bufferLogger(&buf)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Count(ctx, 1<<21)
	assert.ErrorIs(t, err, executor.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, buf.String(), "falling back")
}

func TestProfile(t *testing.T) {
	d, err := New(testConfig(), WithExecutorOptions(executor.WithGenerators(seeded)))
	require.NoError(t, err)

	const count = 123_457
	p, err := d.Profile(context.Background(), count)
	require.NoError(t, err)
	heads, err := d.CountCPU(context.Background(), count)
	require.NoError(t, err)
	assert.Equal(t, heads, p.Heads)
	assert.Equal(t, uint64(count), p.Bits)
}
