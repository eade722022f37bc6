package renderer

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuBuffer is a bind_group_provider.Buffer backed by a *wgpu.Buffer.
type wgpuBuffer struct {
	label string
	buf   *wgpu.Buffer
	size  uint64
	usage wgpu.BufferUsage
	once  sync.Once
}

var _ bind_group_provider.Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) Usage() wgpu.BufferUsage {
	return b.usage
}

func (b *wgpuBuffer) Release() {
	b.once.Do(b.buf.Release)
}

// wgpuSubmission resolves when the queue reports the submitted work done.
type wgpuSubmission struct {
	label  string
	device *wgpu.Device
	done   chan CommandStatus
	once   sync.Once
	status CommandStatus
}

var _ Submission = &wgpuSubmission{}

func (s *wgpuSubmission) Label() string {
	return s.label
}

func (s *wgpuSubmission) Wait() CommandStatus {
	s.once.Do(func() {
		for {
			select {
			case status := <-s.done:
				s.status = status
				return
			default:
				s.device.Poll(true, nil)
			}
		}
	})
	return s.status
}

// workDoneStatus maps a queue work-done status onto CommandStatus.
func workDoneStatus(status wgpu.QueueWorkDoneStatus) CommandStatus {
	switch status {
	case wgpu.QueueWorkDoneStatusSuccess:
		return CommandStatusSuccess
	case wgpu.QueueWorkDoneStatusError:
		return CommandStatusError
	case wgpu.QueueWorkDoneStatusDeviceLost:
		return CommandStatusDeviceLost
	default:
		return CommandStatusUnknown
	}
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	limits Limits

	surfaceFormat   *wgpu.TextureFormat
	msaaTexture     *wgpu.Texture
	msaaTextureView *wgpu.TextureView

	presentMode wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)
	sampleCount MSAASampleCount  // MSAA sample count for every layer pass

	// layouts holds the bind group layouts each registered pipeline was created with, keyed by
	// pipeline key. Bind groups are created against these so they always match the pipeline.
	layouts map[string][]*wgpu.BindGroupLayout

	// Frame state for the layered render batch
	frameLabel   string
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	framePushed  bool
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	// Compute frame state for batching all compute dispatches into a single GPU submission
	computeLabel        string
	computeFrameEncoder *wgpu.CommandEncoder
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, sampleCount MSAASampleCount) (RendererBackend, error) {
	if surfaceDescriptor == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedDevice, ErrNoSurface)
	}

	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		sampleCount: sampleCount,
		layouts:     make(map[string][]*wgpu.BindGroupLayout),
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrUnsupportedDevice, err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrUnsupportedDevice, err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.limits = deviceLimits(d.GetLimits().Limits)

	return w, nil
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A minimized window reports a zero size; keep the previous configuration.
	if width <= 0 || height <= 0 {
		return nil
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return fmt.Errorf("%w: surface reports no formats", ErrUnsupportedDevice)
	}
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	if b.msaaTextureView != nil {
		b.msaaTextureView.Release()
		b.msaaTextureView = nil
	}
	if b.msaaTexture != nil {
		b.msaaTexture.Release()
		b.msaaTexture = nil
	}

	count := uint32(b.sampleCount)
	if count <= 1 {
		return nil
	}

	// Layers draw into the MSAA texture; each pass resolves into the swapchain view.
	msaaTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "MSAA Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        *b.surfaceFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return err
	}
	view, err := msaaTexture.CreateView(nil)
	if err != nil {
		msaaTexture.Release()
		return err
	}
	b.msaaTexture = msaaTexture
	b.msaaTextureView = view
	return nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) Limits() Limits {
	return b.limits
}

// deviceLimits converts the limits a device reports. Fields left undefined or zero keep the
// WebGPU baseline.
func deviceLimits(supported wgpu.Limits) Limits {
	limits := DefaultLimits
	if v := supported.MaxComputeInvocationsPerWorkgroup; v != 0 && v != wgpu.LimitU32Undefined {
		limits.MaxComputeInvocationsPerWorkgroup = v
	}
	if v := supported.MinUniformBufferOffsetAlignment; v != 0 && v != wgpu.LimitU32Undefined {
		limits.MinUniformBufferOffsetAlignment = v
	}
	return limits
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (bind_group_provider.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(contents) > 0 {
		usage |= wgpu.BufferUsageCopyDst
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	if len(contents) > 0 {
		b.queue.WriteBuffer(buf, 0, contents)
	}
	return &wgpuBuffer{label: label, buf: buf, size: size, usage: usage}, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		target, err := asWGPUBuffer(w.Target())
		if err != nil {
			return err
		}
		if w.Offset+uint64(len(w.Data)) > target.size {
			return fmt.Errorf("write of %d bytes at %d overruns %s (%d bytes)", len(w.Data), w.Offset, target.label, target.size)
		}
		b.queue.WriteBuffer(target.buf, w.Offset, w.Data)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error) {
	src, err := asWGPUBuffer(buf)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: src.label + " Readback",
		Size:  src.size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Readback command buffer"})
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	encoder.CopyBufferToBuffer(src.buf, 0, staging, 0, src.size)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.mu.Unlock()

	done := false
	var status wgpu.BufferMapAsyncStatus
	staging.MapAsync(wgpu.MapModeRead, 0, src.size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for !done {
		b.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map %s for readback: status %d", src.label, status)
	}

	data := staging.GetMappedRange(0, 0)
	out := make([]byte, len(data))
	copy(out, data)
	staging.Unmap()
	return out, nil
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeVertex) == nil || p.Shader(shader.ShaderTypeFragment) == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceFormat == nil {
		return errors.New("surface must be configured before registering a render pipeline")
	}

	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)

	vs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: vertexShader.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: vertexShader.Source(),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", shader.ErrCompile, vertexShader.Key(), err)
	}
	fs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: fragmentShader.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: fragmentShader.Source(),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", shader.ErrCompile, fragmentShader.Key(), err)
	}

	bindGroupLayouts, err := b.createBindGroupLayouts(pipelineBindGroupLayouts(p))
	if err != nil {
		return err
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}

	vertexLayouts := make([]wgpu.VertexBufferLayout, 0, len(vertexShader.VertexLayouts()))
	for i := range vertexShader.VertexLayouts() {
		vertexLayouts = append(vertexLayouts, vertexShader.VertexLayout(i)...)
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.Label(),
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets: []wgpu.ColorTargetState{{
				Format:    *b.surfaceFormat,
				Blend:     p.BlendState(),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", shader.ErrCompile, p.PipelineKey(), err)
	}

	b.layouts[p.PipelineKey()] = bindGroupLayouts
	p.SetPipeline(created)

	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeCompute) == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	computeShader := p.Shader(shader.ShaderTypeCompute)
	s, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: computeShader.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: computeShader.Source(),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", shader.ErrCompile, computeShader.Key(), err)
	}

	bindGroupLayouts, err := b.createBindGroupLayouts(pipelineBindGroupLayouts(p))
	if err != nil {
		return err
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.Label(),
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", shader.ErrCompile, p.PipelineKey(), err)
	}

	b.layouts[p.PipelineKey()] = bindGroupLayouts
	p.SetPipeline(created)

	return nil
}

// createBindGroupLayouts creates one layout per group index, dense from 0 to the highest group.
func (b *wgpuRendererBackendImpl) createBindGroupLayouts(descriptors map[int]wgpu.BindGroupLayoutDescriptor) ([]*wgpu.BindGroupLayout, error) {
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g, desc := range descriptors {
		layout, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		bindGroupLayouts[g] = layout
	}
	return bindGroupLayouts, nil
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, p pipeline.Pipeline, group int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	layouts := b.layouts[p.PipelineKey()]
	if group < 0 || group >= len(layouts) || layouts[group] == nil {
		return fmt.Errorf("%w: %s has no layout for group %d", ErrPipelineNotReady, p.PipelineKey(), group)
	}
	descriptor := pipelineBindGroupLayouts(p)[group]

	entries := make([]wgpu.BindGroupEntry, 0, len(descriptor.Entries))
	for _, entry := range descriptor.Entries {
		binding, ok := provider.Binding(int(entry.Binding))
		if !ok || binding.Buffer == nil {
			return fmt.Errorf("%w: %s binding %d", ErrBindingMissing, provider.Label(), entry.Binding)
		}
		buf, err := asWGPUBuffer(binding.Buffer)
		if err != nil {
			return err
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf.buf,
			Offset:  binding.Offset,
			Size:    binding.Extent(),
		})
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layouts[group],
		Entries: entries,
	})
	if err != nil {
		return err
	}
	provider.Release()
	provider.SetBindGroup(bindGroup)

	return nil
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame(label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder != nil {
		return fmt.Errorf("%w: %s", ErrBatchOpen, b.computeLabel)
	}
	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	b.computeLabel = label
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(
	p pipeline.Pipeline,
	computeProvider bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoBatch
	}
	computePipeline, ok := p.Pipeline().(*wgpu.ComputePipeline)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotReady, p.PipelineKey())
	}
	bindGroup, ok := computeProvider.BindGroup().(*wgpu.BindGroup)
	if !ok {
		return fmt.Errorf("%w: %s has no bind group", ErrBindingMissing, computeProvider.Label())
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() (Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return nil, ErrNoBatch
	}
	encoder := b.computeFrameEncoder
	b.computeFrameEncoder = nil
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(&wgpu.CommandBufferDescriptor{Label: b.computeLabel})
	if err != nil {
		return nil, err
	}
	return b.submit(b.computeLabel, commandBuffer), nil
}

// submit hands a finished command buffer to the queue and returns a Submission tracking it.
// The caller must hold b.mu.
func (b *wgpuRendererBackendImpl) submit(label string, commandBuffer *wgpu.CommandBuffer) Submission {
	sub := &wgpuSubmission{
		label:  label,
		device: b.device,
		done:   make(chan CommandStatus, 1),
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		sub.done <- workDoneStatus(status)
	})
	return sub
}

func (b *wgpuRendererBackendImpl) BeginFrame(label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A surface texture still held from the previous frame means EndFrame was skipped.
	if b.frameSurface != nil {
		return fmt.Errorf("%w: previous frame surface not yet presented", ErrBatchOpen)
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.frameLabel = label
	b.frameEncoder = encoder
	b.frameSurface = surfaceTexture
	b.frameView = view

	return nil
}

func (b *wgpuRendererBackendImpl) BeginLayer(desc LayerDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoBatch
	}
	if b.framePass != nil {
		return fmt.Errorf("%w: layer still open", ErrBatchOpen)
	}

	loadOp := wgpu.LoadOpClear
	if desc.LoadAction == LoadActionLoad {
		loadOp = wgpu.LoadOpLoad
	}

	// With MSAA the layers accumulate in the MSAA texture, so it must be stored for the next
	// layer to load; every pass resolves into the swapchain view.
	attachment := wgpu.RenderPassColorAttachment{
		View:       b.frameView,
		LoadOp:     loadOp,
		StoreOp:    wgpu.StoreOpStore,
		ClearValue: desc.ClearColor,
	}
	if b.sampleCount > 1 && b.msaaTextureView != nil {
		attachment.View = b.msaaTextureView
		attachment.ResolveTarget = b.frameView
	}

	pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{attachment},
	})
	b.framePushed = desc.DebugGroup != ""
	if b.framePushed {
		pass.PushDebugGroup(desc.DebugGroup)
	}
	b.framePass = pass
	return nil
}

func (b *wgpuRendererBackendImpl) DrawCall(
	p pipeline.Pipeline,
	meshProvider bind_group_provider.BindGroupProvider,
	bindGroups []bind_group_provider.BindGroupProvider,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoBatch
	}
	renderPipeline, ok := p.Pipeline().(*wgpu.RenderPipeline)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotReady, p.PipelineKey())
	}
	vertexBuffer, err := asWGPUBuffer(meshProvider.VertexBuffer())
	if err != nil {
		return err
	}
	indexBuffer, err := asWGPUBuffer(meshProvider.IndexBuffer())
	if err != nil {
		return err
	}

	b.framePass.SetPipeline(renderPipeline)
	for i, bg := range bindGroups {
		bindGroup, ok := bg.BindGroup().(*wgpu.BindGroup)
		if !ok {
			return fmt.Errorf("%w: %s has no bind group", ErrBindingMissing, bg.Label())
		}
		b.framePass.SetBindGroup(uint32(i), bindGroup, nil)
	}

	b.framePass.SetVertexBuffer(0, vertexBuffer.buf, 0, wgpu.WholeSize)
	b.framePass.SetIndexBuffer(indexBuffer.buf, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	b.framePass.DrawIndexed(uint32(meshProvider.IndexCount()), 1, 0, 0, 0)
	return nil
}

func (b *wgpuRendererBackendImpl) EndLayer() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoBatch
	}
	if b.framePushed {
		b.framePass.PopDebugGroup()
		b.framePushed = false
	}
	b.framePass.End()
	b.framePass.Release()
	b.framePass = nil
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() (Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return nil, ErrNoBatch
	}
	if b.framePass != nil {
		if b.framePushed {
			b.framePass.PopDebugGroup()
			b.framePushed = false
		}
		b.framePass.End()
		b.framePass.Release()
		b.framePass = nil
	}

	encoder := b.frameEncoder
	b.frameEncoder = nil
	defer encoder.Release()
	defer b.releaseFrameTarget()

	commandBuffer, err := encoder.Finish(&wgpu.CommandBufferDescriptor{Label: b.frameLabel})
	if err != nil {
		return nil, err
	}

	sub := b.submit(b.frameLabel, commandBuffer)
	b.surface.Present()
	return sub, nil
}

// releaseFrameTarget drops the references to the acquired surface texture. The caller must hold b.mu.
func (b *wgpuRendererBackendImpl) releaseFrameTarget() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) Snapshot() (image.Image, bool) {
	return nil, false
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrameTarget()
	for key, layouts := range b.layouts {
		for _, layout := range layouts {
			if layout != nil {
				layout.Release()
			}
		}
		delete(b.layouts, key)
	}
	if b.msaaTextureView != nil {
		b.msaaTextureView.Release()
		b.msaaTextureView = nil
	}
	if b.msaaTexture != nil {
		b.msaaTexture.Release()
		b.msaaTexture = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// asWGPUBuffer unwraps a buffer created by this backend.
func asWGPUBuffer(buf bind_group_provider.Buffer) (*wgpuBuffer, error) {
	if buf == nil {
		return nil, ErrBindingMissing
	}
	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %s was not created by the wgpu backend", buf.Label())
	}
	return wb, nil
}

// pipelineBindGroupLayouts returns the bind group layout descriptors a pipeline is built against:
// the compute shader's layouts, or the vertex and fragment layouts merged for a render pipeline.
func pipelineBindGroupLayouts(p pipeline.Pipeline) map[int]wgpu.BindGroupLayoutDescriptor {
	if p.Type() == pipeline.PipelineTypeCompute {
		if s := p.Shader(shader.ShaderTypeCompute); s != nil {
			return s.BindGroupLayoutDescriptors()
		}
		return nil
	}
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	if vertexShader == nil || fragmentShader == nil {
		return nil
	}
	return mergeBindGroupLayouts(vertexShader.BindGroupLayoutDescriptors(), fragmentShader.BindGroupLayoutDescriptors())
}

// mergeBindGroupLayouts combines bind group layout descriptors from vertex and fragment shaders.
// When both shaders declare the same group and binding, their visibility flags are OR'd together
// so the resulting layout is valid for both stages.
//
// Parameters:
//   - vertexLayouts: the vertex shader's bind group layout descriptors keyed by group index
//   - fragmentLayouts: the fragment shader's bind group layout descriptors keyed by group index
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func mergeBindGroupLayouts(
	vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor,
) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor)

	groupIndices := make(map[int]bool)
	for g := range vertexLayouts {
		groupIndices[g] = true
	}
	for g := range fragmentLayouts {
		groupIndices[g] = true
	}

	for g := range groupIndices {
		vDesc, hasV := vertexLayouts[g]
		fDesc, hasF := fragmentLayouts[g]

		switch {
		case hasV && !hasF:
			merged[g] = vDesc
		case hasF && !hasV:
			merged[g] = fDesc
		default:
			entryMap := make(map[uint32]wgpu.BindGroupLayoutEntry)
			for _, e := range vDesc.Entries {
				entryMap[e.Binding] = e
			}
			for _, e := range fDesc.Entries {
				if existing, ok := entryMap[e.Binding]; ok {
					// same binding in both stages, OR the visibility
					existing.Visibility |= e.Visibility
					entryMap[e.Binding] = existing
				} else {
					entryMap[e.Binding] = e
				}
			}

			entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
			for _, e := range entryMap {
				entries = append(entries, e)
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Binding < entries[j].Binding
			})

			merged[g] = wgpu.BindGroupLayoutDescriptor{
				Label:   vDesc.Label,
				Entries: entries,
			}
		}
	}

	return merged
}
