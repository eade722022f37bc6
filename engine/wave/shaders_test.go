package wave

import (
	"testing"

	"github.com/Carmen-Shannon/wave-profile/common"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKernelsCompile(t *testing.T) {
	kernels, err := DefaultKernels(DefaultConfig())
	require.NoError(t, err)

	for _, s := range []shader.Shader{kernels.Compute, kernels.Vertex, kernels.Fragment} {
		assert.NoError(t, shader.Validate(s), s.Key())
	}

	assert.Equal(t, "profile_kernel", kernels.Compute.EntryPoint())
	assert.Equal(t, [3]uint32{256, 1, 1}, kernels.Compute.WorkgroupSize())
	assert.Equal(t, "pass_through_vertex", kernels.Vertex.EntryPoint())
	assert.Equal(t, "pass_through_fragment", kernels.Fragment.EntryPoint())

	layouts := kernels.Vertex.VertexLayout(0)
	require.Len(t, layouts, 1)
	assert.Equal(t, uint64(8), layouts[0].ArrayStride)

	compute := kernels.Compute.BindGroupLayoutDescriptor(0).Entries
	require.Len(t, compute, 3)
	assert.Equal(t, uint64(16), compute[2].Buffer.MinBindingSize)
	assert.Equal(t, uint64(32), kernels.Vertex.BindGroupLayoutDescriptor(0).Entries[0].Buffer.MinBindingSize)
}

// bindings is a single bind group of host byte slices.
type bindings map[int][]byte

func (b bindings) Binding(group, binding int) []byte {
	if group != 0 {
		return nil
	}
	return b[binding]
}

func TestProfileKernel(t *testing.T) {
	base := make([]byte, 16)
	common.PutFloat32s(base, 0.25, 1, 0.25, -1)
	profile := make([]byte, 16)
	wp := params.WaveParams{QBase: 0.5, Amplitude: 0.2, Height: 0.3}
	res := bindings{0: base, 1: profile, 2: wp.Marshal()}

	ProfileKernel(shader.Invocation{GlobalID: [3]uint32{0, 0, 0}}, res)
	ProfileKernel(shader.Invocation{GlobalID: [3]uint32{1, 0, 0}}, res)
	// out of range threads are ignored
	ProfileKernel(shader.Invocation{GlobalID: [3]uint32{2, 0, 0}}, res)

	got := common.Float32sFromBytes(profile)
	// sin(pi/2) = 1 and cos(pi/2) = 0
	assert.InDelta(t, 0.25-0.5*0.2, got[0], 1e-6)
	assert.InDelta(t, 0.3, got[1], 1e-6)
	assert.InDelta(t, 0.25-0.5*0.2, got[2], 1e-6)
	assert.Equal(t, float32(-1), got[3])
}

func TestPassThroughKernels(t *testing.T) {
	fc := params.NewFrameConstants()
	fc.Darken(0.5)
	fc.Offset = [4]float32{0.1, -0.1, 0, 1}
	res := bindings{0: fc.Marshal()}

	vertex := make([]byte, 8)
	common.PutFloat32s(vertex, 0.5, 0.5)
	out := PassThroughVertex(vertex, res)

	assert.InDeltaSlice(t, []float32{0.6, 0.4, 0, 1}, out.Position[:], 1e-6)
	assert.Equal(t, [4]float32{0.5, 0.5, 1, 1}, out.Colour)
	assert.Equal(t, fc.Colour, PassThroughFragment(out, res))
}
