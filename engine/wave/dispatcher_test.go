package wave

import (
	"testing"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSoftwareRenderer(t *testing.T, options ...renderer.RendererBuilderOption) renderer.Renderer {
	t.Helper()
	options = append([]renderer.RendererBuilderOption{renderer.WithSurfaceSize(64, 64), renderer.WithWorkerCount(2)}, options...)
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, options...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestNewDispatcher(t *testing.T) {
	r := newSoftwareRenderer(t)
	cfg := DefaultConfig()
	kernels, err := DefaultKernels(cfg)
	require.NoError(t, err)

	d, err := NewDispatcher(r, kernels.Compute, ComputePipelineKey, cfg)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{4, 1, 1}, d.WorkGroups())
	assert.Equal(t, 256, d.ThreadsPerGroup())
}

func TestNewDispatcherRejectsLayouts(t *testing.T) {
	r := newSoftwareRenderer(t)

	t.Run("width does not divide the vertex count", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ThreadGroupWidth = 3
		_, err := NewDispatcher(r, nil, ComputePipelineKey, cfg)
		assert.ErrorIs(t, err, ErrThreadGroupWidth)
	})

	t.Run("threads over the device limit", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PointCount = 1024
		_, err := NewDispatcher(r, nil, ComputePipelineKey, cfg)
		assert.ErrorIs(t, err, ErrThreadGroupLimit)
	})

	t.Run("kernel workgroup size differs", func(t *testing.T) {
		narrow := DefaultConfig()
		narrow.ThreadGroupWidth = 8
		kernels, err := DefaultKernels(narrow)
		require.NoError(t, err)
		assert.Equal(t, [3]uint32{128, 1, 1}, kernels.Compute.WorkgroupSize())

		_, err = NewDispatcher(r, kernels.Compute, ComputePipelineKey, DefaultConfig())
		assert.ErrorIs(t, err, ErrWorkgroupMismatch)
	})
}

func TestDefaultKernelsRejectsWidth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThreadGroupWidth = 0
	_, err := DefaultKernels(cfg)
	assert.ErrorIs(t, err, ErrThreadGroupWidth)
}
