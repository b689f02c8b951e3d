//go:build gpu

package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOrSkip(t *testing.T) Device {
	t.Helper()
	dev, err := OpenWebGPU(context.Background(), "")
	if err != nil {
		t.Skipf("no webgpu adapter: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestWebGPUMatchesEmulator(t *testing.T) {
	dev := openOrSkip(t)
	info := dev.Info()
	t.Logf("adapter %q (%s, %s)", info.Name, info.Vendor, info.Backend)

	wg := chooseWorkgroup(64, info.MaxWorkgroupSize)
	p, err := PlanThreads(10_000_019, Layout{
		ComputeUnits:    8,
		Occupancy:       256,
		WorkgroupSize:   wg,
		MaxGroupsPerDim: info.MaxWorkgroupsPerDimension,
	})
	require.NoError(t, err)

	ctx := context.Background()
	prog, err := dev.Compile(ctx, KernelSource(wg))
	require.NoError(t, err)
	defer prog.Release()

	got, err := dev.Dispatch(ctx, prog, p.Args(fixedSeeds(p.Threads)))
	require.NoError(t, err)

	want := dispatchEmulated(t, NewEmulator(), p, fixedSeeds(p.Threads))
	assert.Equal(t, want, got)
}

func TestWebGPURejectsBadKernel(t *testing.T) {
	dev := openOrSkip(t)
	_, err := dev.Compile(context.Background(), "@compute fn main( {")
	assert.ErrorIs(t, err, ErrCompile)
}
