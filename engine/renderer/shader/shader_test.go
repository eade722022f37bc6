package shader

import (
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testComputeSource = `//@wave:include profile_coord
//@wave:include wave_params

//@wave:group 0 0 storage_read base array<profile_coord>
//@wave:group 0 1 storage_read_write profile array<profile_coord>
//@wave:group 0 2 storage_uniform params wave_params

//@wave:workgroup
fn scale(@builtin(global_invocation_id) gid: vec3<u32>) {
    profile[gid.x].x = base[gid.x].x * params.amplitude;
    profile[gid.x].y = base[gid.x].y;
}
`

const testVertexSource = `//@wave:include frame_constants

//@wave:group 0 0 storage_uniform constants frame_constants

struct VertexInput {
    @location(0) position: vec2<f32>,
};

@vertex
fn vs_main(vin: VertexInput) -> @builtin(position) vec4<f32> {
    return vec4<f32>(vin.position, 0.0, 1.0) + constants.offset;
}
`

func TestPreProcessorProcess(t *testing.T) {
	pp := NewPreProcessor(WithWorkgroupSize(64))
	out, err := pp.Process(testComputeSource)
	require.NoError(t, err)

	assert.Contains(t, out, "struct ProfileCoord {")
	assert.Contains(t, out, "struct WaveParams {")
	assert.Contains(t, out, "@group(0) @binding(0) var<storage, read> base: array<ProfileCoord>;")
	assert.Contains(t, out, "@group(0) @binding(1) var<storage, read_write> profile: array<ProfileCoord>;")
	assert.Contains(t, out, "@group(0) @binding(2) var<uniform> params: WaveParams;")
	assert.Contains(t, out, "@compute @workgroup_size(64, 1, 1)")
	assert.NotContains(t, out, "@wave:")

	decls := pp.Declarations()
	require.Len(t, decls, 3)
	for i, d := range decls {
		assert.Equal(t, AnnotationTypeBindingGroup, d.Type)
		assert.Equal(t, 0, *d.Group)
		assert.Equal(t, i, *d.Binding)
	}
	assert.Equal(t, [3]uint32{64, 1, 1}, pp.WorkgroupSize())
}

func TestPreProcessorErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{name: "workgroup without size", source: "//@wave:workgroup\n", wantErr: ErrWorkgroupUnset},
		{name: "unknown include", source: "//@wave:include camera\n"},
		{name: "short group", source: "//@wave:group 0 0 storage_uniform params\n"},
		{name: "bad address space", source: "//@wave:group 0 0 private params wave_params\n"},
		{name: "bad group number", source: "//@wave:group x 0 storage_uniform params wave_params\n"},
		{name: "empty annotation", source: "//@wave:\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreProcessor().Process(tt.source)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewShaderCompute(t *testing.T) {
	s, err := NewShader("scale", ShaderTypeCompute, testComputeSource,
		WithPreProcessor(NewPreProcessor(WithWorkgroupSize(128))),
	)
	require.NoError(t, err)

	assert.Equal(t, "scale", s.Key())
	assert.Equal(t, ShaderTypeCompute, s.ShaderType())
	assert.Equal(t, "scale", s.EntryPoint())
	assert.Equal(t, [3]uint32{128, 1, 1}, s.WorkgroupSize())
	assert.Equal(t, "scale", s.Module().Label)
	assert.Len(t, s.Declarations(), 3)

	entries := s.BindGroupLayoutDescriptor(0).Entries
	require.Len(t, entries, 3)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, entries[0].Buffer.Type)
	assert.Equal(t, uint64(8), entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, entries[1].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, entries[2].Buffer.Type)
	assert.Equal(t, uint64(16), entries[2].Buffer.MinBindingSize)
	for _, e := range entries {
		assert.Equal(t, wgpu.ShaderStageCompute, e.Visibility)
	}

	assert.Equal(t, "params", s.BindGroupVarName(0, 2))
	binding, ok := s.BindGroupFromVarName(0, "profile")
	assert.True(t, ok)
	assert.Equal(t, 1, binding)
	_, ok = s.BindGroupFromVarName(0, "missing")
	assert.False(t, ok)
}

func TestNewShaderVertex(t *testing.T) {
	s, err := NewShader("vs", ShaderTypeVertex, testVertexSource)
	require.NoError(t, err)

	assert.Equal(t, "vs_main", s.EntryPoint())

	layouts := s.VertexLayout(0)
	require.Len(t, layouts, 1)
	assert.Equal(t, uint64(8), layouts[0].ArrayStride)
	require.Len(t, layouts[0].Attributes, 1)
	assert.Equal(t, wgpu.VertexFormatFloat32x2, layouts[0].Attributes[0].Format)
	assert.Equal(t, uint32(0), layouts[0].Attributes[0].ShaderLocation)

	entries := s.BindGroupLayoutDescriptor(0).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(32), entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.ShaderStageVertex, entries[0].Visibility)
}

func TestNewShaderNoEntryPoint(t *testing.T) {
	_, err := NewShader("vs", ShaderTypeFragment, testVertexSource)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestNewShaderWorkgroupUnset(t *testing.T) {
	_, err := NewShader("scale", ShaderTypeCompute, testComputeSource)
	assert.ErrorIs(t, err, ErrWorkgroupUnset)
}

func TestShaderKernels(t *testing.T) {
	called := false
	s, err := NewShader("scale", ShaderTypeCompute, testComputeSource,
		WithPreProcessor(NewPreProcessor(WithWorkgroupSize(1))),
		WithComputeKernel(func(Invocation, Resources) { called = true }),
	)
	require.NoError(t, err)
	require.NotNil(t, s.ComputeKernel())
	assert.Nil(t, s.VertexKernel())
	assert.Nil(t, s.FragmentKernel())

	s.ComputeKernel()(Invocation{}, nil)
	assert.True(t, called)
}

func TestValidate(t *testing.T) {
	s, err := NewShader("scale", ShaderTypeCompute, testComputeSource,
		WithPreProcessor(NewPreProcessor(WithWorkgroupSize(64))),
	)
	require.NoError(t, err)
	assert.NoError(t, Validate(s))

	broken := strings.Replace(testComputeSource, "params.amplitude", "params.missing_field", 1)
	s, err = NewShader("broken", ShaderTypeCompute, broken,
		WithPreProcessor(NewPreProcessor(WithWorkgroupSize(64))),
	)
	require.NoError(t, err)
	assert.ErrorIs(t, Validate(s), ErrCompile)
}
