package renderer

import (
	"image/color"
	"runtime"
	"testing"
	"time"

	"github.com/Carmen-Shannon/wave-profile/common"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doubleSource = `//@wave:include profile_coord
//@wave:group 0 0 storage_read_write data array<profile_coord>

//@wave:workgroup
fn double_x(@builtin(global_invocation_id) gid: vec3<u32>) {
    data[gid.x].x = data[gid.x].x * 2.0;
}
`

const quadVertexSource = `//@wave:include frame_constants
//@wave:group 0 0 storage_uniform constants frame_constants

struct VertexInput {
    @location(0) position: vec2<f32>,
};

@vertex
fn quad_vertex(vin: VertexInput) -> @builtin(position) vec4<f32> {
    return vec4<f32>(vin.position, 0.0, 1.0) + constants.offset - vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

const quadFragmentSource = `//@wave:include frame_constants
//@wave:group 0 0 storage_uniform constants frame_constants

@fragment
fn quad_fragment() -> @location(0) vec4<f32> {
    return constants.colour;
}
`

func doubleKernel(inv shader.Invocation, res shader.Resources) {
	data := res.Binding(0, 0)
	off := int(inv.GlobalID[0]) * 8
	v := common.Float32sFromBytes(data[off : off+4])
	common.PutFloat32s(data[off:off+4], v[0]*2)
}

func quadVertexKernel(vertex []byte, _ shader.Resources) shader.VertexOutput {
	p := common.Float32sFromBytes(vertex)
	return shader.VertexOutput{Position: [4]float32{p[0], p[1], 0, 1}}
}

func quadFragmentKernel(_ shader.VertexOutput, res shader.Resources) [4]float32 {
	return params.UnmarshalFrameConstants(res.Binding(0, 0)).Colour
}

func newTestRenderer(t *testing.T, options ...RendererBuilderOption) Renderer {
	t.Helper()
	options = append([]RendererBuilderOption{WithSurfaceSize(16, 16), WithWorkerCount(2)}, options...)
	r, err := NewRenderer(BackendTypeSoftware, options...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func registerDouble(t *testing.T, r Renderer) {
	t.Helper()
	s, err := shader.NewShader("double_x", shader.ShaderTypeCompute, doubleSource,
		shader.WithPreProcessor(shader.NewPreProcessor(shader.WithWorkgroupSize(4))),
		shader.WithComputeKernel(doubleKernel),
	)
	require.NoError(t, err)
	require.NoError(t, r.RegisterPipelines(pipeline.NewPipeline("double_x", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s))))
}

func registerQuad(t *testing.T, r Renderer, key string, cull wgpu.CullMode) {
	t.Helper()
	vs, err := shader.NewShader("quad_vertex", shader.ShaderTypeVertex, quadVertexSource, shader.WithVertexKernel(quadVertexKernel))
	require.NoError(t, err)
	fs, err := shader.NewShader("quad_fragment", shader.ShaderTypeFragment, quadFragmentSource, shader.WithFragmentKernel(quadFragmentKernel))
	require.NoError(t, err)
	require.NoError(t, r.RegisterPipelines(pipeline.NewPipeline(key, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithCullMode(cull),
		pipeline.WithFrontFace(wgpu.FrontFaceCW),
	)))
}

func TestNewRendererUnsupported(t *testing.T) {
	_, err := NewRenderer(BackendTypeWGPU)
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
	assert.ErrorIs(t, err, ErrNoSurface)

	_, err = NewRenderer(RendererBackendType(42))
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestSoftwareLimits(t *testing.T) {
	r := newTestRenderer(t)
	limits := r.Limits()
	assert.Equal(t, uint32(256), limits.MaxComputeInvocationsPerWorkgroup)
	assert.Equal(t, uint32(256), limits.MinUniformBufferOffsetAlignment)
}

func TestDeviceLimits(t *testing.T) {
	assert.Equal(t, DefaultLimits, deviceLimits(wgpu.DefaultLimits()))

	supported := wgpu.DefaultLimits()
	supported.MaxComputeInvocationsPerWorkgroup = 1024
	supported.MinUniformBufferOffsetAlignment = 64
	assert.Equal(t, Limits{MaxComputeInvocationsPerWorkgroup: 1024, MinUniformBufferOffsetAlignment: 64}, deviceLimits(supported))

	assert.Equal(t, DefaultLimits, deviceLimits(wgpu.Limits{}))
}

func TestSoftwareReleaseStopsWorkers(t *testing.T) {
	baseline := runtime.NumGoroutine()

	r, err := NewRenderer(BackendTypeSoftware, WithSurfaceSize(16, 16), WithWorkerCount(1))
	require.NoError(t, err)
	registerDouble(t, r)

	r.Release()
	r.Release()

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)

	buf, err := r.CreateBuffer("after", 16, wgpu.BufferUsageStorage, nil)
	require.NoError(t, err)
	_, err = r.ReadBuffer(buf)
	assert.Error(t, err)
}

func TestParseBackendType(t *testing.T) {
	for _, bt := range []RendererBackendType{BackendTypeWGPU, BackendTypeSoftware} {
		got, err := ParseBackendType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, got)
	}
	_, err := ParseBackendType("metal")
	assert.Error(t, err)
}

func TestSoftwareBuffers(t *testing.T) {
	r := newTestRenderer(t)

	buf, err := r.CreateBuffer("data", 16, wgpu.BufferUsageStorage, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(16), buf.Size())
	assert.NotZero(t, buf.Usage()&wgpu.BufferUsageCopyDst)

	require.NoError(t, r.WriteBuffers([]bind_group_provider.BufferWrite{{Buffer: buf, Offset: 8, Data: []byte{9, 9}}}))
	data, err := r.ReadBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0, 9, 9, 0, 0, 0, 0, 0, 0}, data)

	assert.Error(t, r.WriteBuffers([]bind_group_provider.BufferWrite{{Buffer: buf, Offset: 15, Data: []byte{1, 2}}}))

	_, err = r.CreateBuffer("small", 2, wgpu.BufferUsageStorage, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSoftwareDispatchCompute(t *testing.T) {
	var seen []Command
	r := newTestRenderer(t, WithCommandObserver(func(cmd Command) { seen = append(seen, cmd) }))
	registerDouble(t, r)

	values := make([]byte, 8*8)
	for i := range 8 {
		common.PutFloat32s(values[i*8:], float32(i), 7)
	}
	buf, err := r.CreateBuffer("data", uint64(len(values)), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc, values)
	require.NoError(t, err)

	provider := bind_group_provider.NewBindGroupProvider("data", bind_group_provider.WithBinding(0, buf))
	require.NoError(t, r.InitBindGroup(provider, "double_x", 0))

	require.NoError(t, r.BeginComputeFrame("compute"))
	require.NoError(t, r.DispatchCompute("double_x", provider, [3]uint32{2, 1, 1}))
	sub, err := r.EndComputeFrame()
	require.NoError(t, err)
	assert.Equal(t, "compute", sub.Label())
	assert.Equal(t, CommandStatusSuccess, sub.Wait())

	data, err := r.ReadBuffer(buf)
	require.NoError(t, err)
	got := common.Float32sFromBytes(data)
	for i := range 8 {
		assert.Equal(t, float32(2*i), got[2*i])
		assert.Equal(t, float32(7), got[2*i+1])
	}

	require.Len(t, seen, 2)
	assert.Equal(t, Command{Kind: CommandKindDispatch, Batch: "compute", Pipeline: "double_x", Provider: "data", WorkGroups: [3]uint32{2, 1, 1}}, seen[0])
	assert.Equal(t, Command{Kind: CommandKindSubmit, Batch: "compute"}, seen[1])
}

func TestSoftwareBatchState(t *testing.T) {
	r := newTestRenderer(t)
	registerDouble(t, r)
	provider := bind_group_provider.NewBindGroupProvider("empty")

	assert.ErrorIs(t, r.DispatchCompute("missing", provider, [3]uint32{1, 1, 1}), ErrPipelineNotReady)

	_, err := r.EndComputeFrame()
	assert.ErrorIs(t, err, ErrNoBatch)

	require.NoError(t, r.BeginComputeFrame("a"))
	assert.ErrorIs(t, r.BeginComputeFrame("b"), ErrBatchOpen)
	assert.ErrorIs(t, r.DispatchCompute("double_x", provider, [3]uint32{1, 1, 1}), ErrBindingMissing)
	_, err = r.EndComputeFrame()
	require.NoError(t, err)

	assert.ErrorIs(t, r.BeginLayer(LayerDescriptor{}), ErrNoBatch)
	require.NoError(t, r.BeginFrame("frame"))
	assert.ErrorIs(t, r.BeginFrame("frame"), ErrBatchOpen)
	require.NoError(t, r.BeginLayer(LayerDescriptor{}))
	assert.ErrorIs(t, r.BeginLayer(LayerDescriptor{}), ErrBatchOpen)
	require.NoError(t, r.EndLayer())
	assert.ErrorIs(t, r.EndLayer(), ErrNoBatch)
	sub, err := r.EndFrame()
	require.NoError(t, err)
	assert.Equal(t, CommandStatusSuccess, sub.Wait())
}

func TestSoftwareInitBindGroupChecks(t *testing.T) {
	r := newTestRenderer(t)
	registerDouble(t, r)

	missing := bind_group_provider.NewBindGroupProvider("missing")
	assert.ErrorIs(t, r.InitBindGroup(missing, "double_x", 0), ErrBindingMissing)
	assert.ErrorIs(t, r.InitBindGroup(missing, "not_registered", 0), ErrPipelineNotReady)

	small, err := r.CreateBuffer("small", 4, wgpu.BufferUsageStorage, nil)
	require.NoError(t, err)
	tooSmall := bind_group_provider.NewBindGroupProvider("small", bind_group_provider.WithBinding(0, small))
	assert.Error(t, r.InitBindGroup(tooSmall, "double_x", 0))
}

func TestSoftwareRegisterWithoutKernel(t *testing.T) {
	r := newTestRenderer(t)
	s, err := shader.NewShader("double_x", shader.ShaderTypeCompute, doubleSource,
		shader.WithPreProcessor(shader.NewPreProcessor(shader.WithWorkgroupSize(4))),
	)
	require.NoError(t, err)

	err = r.RegisterPipelines(pipeline.NewPipeline("double_x", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s)))
	assert.ErrorIs(t, err, ErrNoKernel)
	assert.Nil(t, r.Pipeline("double_x"))
}

func TestSoftwareStatusHook(t *testing.T) {
	r := newTestRenderer(t, WithStatusHook(func(label string) CommandStatus {
		if label == "lost" {
			return CommandStatusDeviceLost
		}
		return CommandStatusSuccess
	}))

	require.NoError(t, r.BeginComputeFrame("lost"))
	sub, err := r.EndComputeFrame()
	require.NoError(t, err)
	assert.Equal(t, CommandStatusDeviceLost, sub.Wait())

	require.NoError(t, r.BeginComputeFrame("fine"))
	sub, err = r.EndComputeFrame()
	require.NoError(t, err)
	assert.Equal(t, CommandStatusSuccess, sub.Wait())
}

// drawQuad clears the frame to black and draws a full-screen quad in colour with the given indices.
func drawQuad(t *testing.T, r Renderer, key string, indices []uint16, colour [4]float32) {
	t.Helper()
	vertices := make([]byte, 4*8)
	common.PutFloat32s(vertices, -1, -1, 1, -1, -1, 1, 1, 1)
	vb, err := r.CreateBuffer("quad", uint64(len(vertices)), wgpu.BufferUsageVertex, vertices)
	require.NoError(t, err)
	ib, err := r.CreateBuffer("quad indices", common.AlignUp(uint64(len(indices)*2), 4), wgpu.BufferUsageIndex, common.SliceToBytes(indices))
	require.NoError(t, err)

	fc := params.FrameConstants{Colour: colour, Offset: [4]float32{0, 0, 0, 1}}
	cb, err := r.CreateBuffer("constants", 256, wgpu.BufferUsageUniform, fc.Marshal())
	require.NoError(t, err)

	mesh := bind_group_provider.NewBindGroupProvider("quad", bind_group_provider.WithVertexBuffer(vb), bind_group_provider.WithIndexBuffer(ib, len(indices)))
	constants := bind_group_provider.NewBindGroupProvider("constants", bind_group_provider.WithBindingRange(0, cb, 0, 32))
	require.NoError(t, r.InitBindGroup(constants, key, 0))

	require.NoError(t, r.BeginFrame("frame"))
	require.NoError(t, r.BeginLayer(LayerDescriptor{Label: "layer", LoadAction: LoadActionClear, ClearColor: wgpu.Color{A: 1}}))
	require.NoError(t, r.DrawCall(key, mesh, []bind_group_provider.BindGroupProvider{constants}))
	require.NoError(t, r.EndLayer())
	sub, err := r.EndFrame()
	require.NoError(t, err)
	require.Equal(t, CommandStatusSuccess, sub.Wait())
}

func TestSoftwareDrawCall(t *testing.T) {
	r := newTestRenderer(t)
	_, ok := r.Snapshot()
	assert.False(t, ok)

	registerQuad(t, r, "quad", wgpu.CullModeNone)
	drawQuad(t, r, "quad", []uint16{2, 3, 0, 3, 1, 0}, [4]float32{1, 0, 0, 1})

	img, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.At(8, 8))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.At(0, 15))
}

func TestSoftwareCulling(t *testing.T) {
	r := newTestRenderer(t)
	registerQuad(t, r, "culled", wgpu.CullModeBack)

	// counter-clockwise winding is the back face
	drawQuad(t, r, "culled", []uint16{2, 0, 3, 3, 0, 1}, [4]float32{0, 1, 0, 1})
	img, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, color.RGBA{A: 255}, img.At(8, 8))

	drawQuad(t, r, "culled", []uint16{2, 3, 0, 3, 1, 0}, [4]float32{0, 1, 0, 1})
	img, ok = r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.At(8, 8))
}
