package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/vector"
)

// ErrNoKernel is returned by the software backend when a shader carries no Go kernel for its stage.
var ErrNoKernel = errors.New("renderer: shader has no kernel for the software backend")

// errBufferOverrun is returned when a binding, write or draw reaches past the end of a buffer.
var errBufferOverrun = errors.New("renderer: access overruns buffer")

// softwareBuffer is a bind_group_provider.Buffer held in host memory. Its contents are only
// touched from the queue goroutine once the buffer has been created.
type softwareBuffer struct {
	label    string
	usage    wgpu.BufferUsage
	data     []byte
	released atomic.Bool
}

var _ bind_group_provider.Buffer = &softwareBuffer{}

func (b *softwareBuffer) Label() string {
	return b.label
}

func (b *softwareBuffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *softwareBuffer) Usage() wgpu.BufferUsage {
	return b.usage
}

func (b *softwareBuffer) Release() {
	b.released.Store(true)
}

// softwareSubmission completes when the queue goroutine has executed the batch.
type softwareSubmission struct {
	label  string
	done   chan struct{}
	status CommandStatus
}

var _ Submission = &softwareSubmission{}

func (s *softwareSubmission) Label() string {
	return s.label
}

func (s *softwareSubmission) Wait() CommandStatus {
	<-s.done
	return s.status
}

// softwareComputeProgram is the compiled form of a compute pipeline.
type softwareComputeProgram struct {
	kernel        shader.ComputeKernel
	workgroupSize [3]uint32
}

// softwareRenderProgram is the compiled form of a render pipeline.
type softwareRenderProgram struct {
	vertex       shader.VertexKernel
	fragment     shader.FragmentKernel
	vertexStride uint64
	cullMode     wgpu.CullMode
	frontFace    wgpu.FrontFace
	blend        bool
}

// softwareBindGroup is a snapshot of a provider's bound ranges, validated against a pipeline layout.
type softwareBindGroup struct {
	bindings map[int]bind_group_provider.BufferBinding
}

// softwareResources resolves kernel bindings against the bind groups of one dispatch or draw.
type softwareResources []*softwareBindGroup

func (r softwareResources) Binding(group, binding int) []byte {
	if group < 0 || group >= len(r) || r[group] == nil {
		return nil
	}
	b, ok := r[group].bindings[binding]
	if !ok {
		return nil
	}
	data := b.Buffer.(*softwareBuffer).data
	return data[b.Offset : b.Offset+b.Extent()]
}

// softwareBatch is a command batch being encoded. Commands run in order on the queue goroutine.
type softwareBatch struct {
	label string
	cmds  []func() error
}

type softwareRendererBackendImpl struct {
	mu *sync.Mutex

	limits      Limits
	presentMode PresentMode
	layouts     map[string]map[int]wgpu.BindGroupLayoutDescriptor

	// The queue goroutine executes writes, reads and batches in submission order.
	ops      chan func()
	stopped  chan struct{}
	released bool

	pool worker.DynamicWorkerPool

	// frame and rasterizer are owned by the queue goroutine.
	frame      *image.RGBA
	rasterizer *vector.Rasterizer

	snapMu   *sync.Mutex
	snapshot *image.RGBA

	computeBatch *softwareBatch
	frameBatch   *softwareBatch
	layerOpen    bool
}

var _ RendererBackend = &softwareRendererBackendImpl{}

func newSoftwareRendererBackend(workers, width, height int) RendererBackend {
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}
	b := &softwareRendererBackendImpl{
		mu:          &sync.Mutex{},
		limits:      DefaultLimits,
		presentMode: PresentModeUncapped,
		layouts:     make(map[string]map[int]wgpu.BindGroupLayoutDescriptor),
		ops:         make(chan func(), 64),
		stopped:     make(chan struct{}),
		pool:        worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		frame:       image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1))),
		snapMu:      &sync.Mutex{},
	}
	b.rasterizer = vector.NewRasterizer(b.frame.Rect.Dx(), b.frame.Rect.Dy())

	go func() {
		defer close(b.stopped)
		for op := range b.ops {
			op()
		}
	}()
	return b
}

// enqueue hands an operation to the queue goroutine. The caller must hold b.mu.
func (b *softwareRendererBackendImpl) enqueue(op func()) error {
	if b.released {
		return errors.New("renderer: software backend released")
	}
	b.ops <- op
	return nil
}

func (b *softwareRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width <= 0 || height <= 0 {
		return nil
	}
	return b.enqueue(func() {
		b.frame = image.NewRGBA(image.Rect(0, 0, width, height))
		b.rasterizer.Reset(width, height)
	})
}

func (b *softwareRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentMode = mode
}

func (b *softwareRendererBackendImpl) Limits() Limits {
	return b.limits
}

func (b *softwareRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (bind_group_provider.Buffer, error) {
	if uint64(len(contents)) > size {
		return nil, fmt.Errorf("%w: %d bytes of contents for %s (%d bytes)", errBufferOverrun, len(contents), label, size)
	}
	if len(contents) > 0 {
		usage |= wgpu.BufferUsageCopyDst
	}
	buf := &softwareBuffer{label: label, usage: usage, data: make([]byte, size)}
	copy(buf.data, contents)
	return buf, nil
}

func (b *softwareRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	type staged struct {
		buf    *softwareBuffer
		offset uint64
		data   []byte
	}
	pending := make([]staged, 0, len(writes))
	for _, w := range writes {
		target, err := asSoftwareBuffer(w.Target())
		if err != nil {
			return err
		}
		if w.Offset+uint64(len(w.Data)) > target.Size() {
			return fmt.Errorf("%w: write of %d bytes at %d into %s", errBufferOverrun, len(w.Data), w.Offset, target.label)
		}
		data := make([]byte, len(w.Data))
		copy(data, w.Data)
		pending = append(pending, staged{buf: target, offset: w.Offset, data: data})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueue(func() {
		for _, s := range pending {
			copy(s.buf.data[s.offset:], s.data)
		}
	})
}

func (b *softwareRendererBackendImpl) ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error) {
	src, err := asSoftwareBuffer(buf)
	if err != nil {
		return nil, err
	}

	result := make(chan []byte, 1)
	b.mu.Lock()
	err = b.enqueue(func() {
		out := make([]byte, len(src.data))
		copy(out, src.data)
		result <- out
	})
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return <-result, nil
}

func (b *softwareRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	if vertexShader == nil || fragmentShader == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}
	for _, s := range []shader.Shader{vertexShader, fragmentShader} {
		if err := shader.Validate(s); err != nil {
			return err
		}
	}
	if vertexShader.VertexKernel() == nil {
		return fmt.Errorf("%w: %s", ErrNoKernel, vertexShader.Key())
	}
	if fragmentShader.FragmentKernel() == nil {
		return fmt.Errorf("%w: %s", ErrNoKernel, fragmentShader.Key())
	}

	layouts := vertexShader.VertexLayout(0)
	if len(layouts) == 0 || layouts[0].ArrayStride == 0 {
		return fmt.Errorf("%s declares no vertex input", vertexShader.Key())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.layouts[p.PipelineKey()] = pipelineBindGroupLayouts(p)
	p.SetPipeline(&softwareRenderProgram{
		vertex:       vertexShader.VertexKernel(),
		fragment:     fragmentShader.FragmentKernel(),
		vertexStride: layouts[0].ArrayStride,
		cullMode:     p.CullMode(),
		frontFace:    p.FrontFace(),
		blend:        p.BlendEnabled(),
	})
	return nil
}

func (b *softwareRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	computeShader := p.Shader(shader.ShaderTypeCompute)
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}
	if err := shader.Validate(computeShader); err != nil {
		return err
	}
	if computeShader.ComputeKernel() == nil {
		return fmt.Errorf("%w: %s", ErrNoKernel, computeShader.Key())
	}
	size := computeShader.WorkgroupSize()
	if size[0]*max(size[1], 1)*max(size[2], 1) > b.limits.MaxComputeInvocationsPerWorkgroup {
		return fmt.Errorf("%s workgroup size %v exceeds the device limit of %d invocations", computeShader.Key(), size, b.limits.MaxComputeInvocationsPerWorkgroup)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.layouts[p.PipelineKey()] = pipelineBindGroupLayouts(p)
	p.SetPipeline(&softwareComputeProgram{
		kernel:        computeShader.ComputeKernel(),
		workgroupSize: [3]uint32{size[0], max(size[1], 1), max(size[2], 1)},
	})
	return nil
}

func (b *softwareRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, p pipeline.Pipeline, group int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	layouts, ok := b.layouts[p.PipelineKey()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotReady, p.PipelineKey())
	}
	descriptor, ok := layouts[group]
	if !ok {
		return fmt.Errorf("%w: %s has no layout for group %d", ErrPipelineNotReady, p.PipelineKey(), group)
	}

	bindings := make(map[int]bind_group_provider.BufferBinding, len(descriptor.Entries))
	for _, entry := range descriptor.Entries {
		binding, ok := provider.Binding(int(entry.Binding))
		if !ok || binding.Buffer == nil {
			return fmt.Errorf("%w: %s binding %d", ErrBindingMissing, provider.Label(), entry.Binding)
		}
		buf, err := asSoftwareBuffer(binding.Buffer)
		if err != nil {
			return err
		}
		if binding.Offset+binding.Extent() > buf.Size() {
			return fmt.Errorf("%w: %s binding %d", errBufferOverrun, provider.Label(), entry.Binding)
		}
		if binding.Extent() < entry.Buffer.MinBindingSize {
			return fmt.Errorf("%s binding %d is %d bytes, layout needs at least %d", provider.Label(), entry.Binding, binding.Extent(), entry.Buffer.MinBindingSize)
		}
		if entry.Buffer.Type == wgpu.BufferBindingTypeUniform && binding.Offset%uint64(b.limits.MinUniformBufferOffsetAlignment) != 0 {
			return fmt.Errorf("%s binding %d offset %d is not a multiple of %d", provider.Label(), entry.Binding, binding.Offset, b.limits.MinUniformBufferOffsetAlignment)
		}
		bindings[int(entry.Binding)] = binding
	}

	provider.Release()
	provider.SetBindGroup(&softwareBindGroup{bindings: bindings})
	return nil
}

func (b *softwareRendererBackendImpl) BeginComputeFrame(label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeBatch != nil {
		return fmt.Errorf("%w: %s", ErrBatchOpen, b.computeBatch.label)
	}
	b.computeBatch = &softwareBatch{label: label}
	return nil
}

func (b *softwareRendererBackendImpl) DispatchCompute(
	p pipeline.Pipeline,
	computeProvider bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeBatch == nil {
		return ErrNoBatch
	}
	program, ok := p.Pipeline().(*softwareComputeProgram)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotReady, p.PipelineKey())
	}
	bindGroup, ok := computeProvider.BindGroup().(*softwareBindGroup)
	if !ok {
		return fmt.Errorf("%w: %s has no bind group", ErrBindingMissing, computeProvider.Label())
	}

	res := softwareResources{bindGroup}
	b.computeBatch.cmds = append(b.computeBatch.cmds, func() error {
		return b.runCompute(program, res, workGroupCount)
	})
	return nil
}

// runCompute fans the workgroups of one dispatch out over the worker pool. Threads inside a
// workgroup run sequentially on one worker.
func (b *softwareRendererBackendImpl) runCompute(program *softwareComputeProgram, res softwareResources, groups [3]uint32) error {
	var wg sync.WaitGroup
	var failMu sync.Mutex
	var failure error
	size := program.workgroupSize

	taskID := 0
	for gz := uint32(0); gz < groups[2]; gz++ {
		for gy := uint32(0); gy < groups[1]; gy++ {
			for gx := uint32(0); gx < groups[0]; gx++ {
				wg.Add(1)
				groupID := [3]uint32{gx, gy, gz}
				id := taskID
				taskID++
				b.pool.SubmitTask(worker.Task{
					ID: id,
					Do: func() (any, error) {
						defer wg.Done()
						defer func() {
							if r := recover(); r != nil {
								failMu.Lock()
								if failure == nil {
									failure = fmt.Errorf("workgroup %v: %v", groupID, r)
								}
								failMu.Unlock()
							}
						}()
						for lz := uint32(0); lz < size[2]; lz++ {
							for ly := uint32(0); ly < size[1]; ly++ {
								for lx := uint32(0); lx < size[0]; lx++ {
									program.kernel(shader.Invocation{
										GlobalID: [3]uint32{
											groupID[0]*size[0] + lx,
											groupID[1]*size[1] + ly,
											groupID[2]*size[2] + lz,
										},
										LocalID:     [3]uint32{lx, ly, lz},
										WorkgroupID: groupID,
									}, res)
								}
							}
						}
						return nil, nil
					},
				})
			}
		}
	}
	wg.Wait()

	return failure
}

func (b *softwareRendererBackendImpl) EndComputeFrame() (Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeBatch == nil {
		return nil, ErrNoBatch
	}
	batch := b.computeBatch
	b.computeBatch = nil
	return b.submit(batch, nil)
}

// submit enqueues a finished batch. after, if set, runs once the batch commands succeed.
// The caller must hold b.mu.
func (b *softwareRendererBackendImpl) submit(batch *softwareBatch, after func()) (Submission, error) {
	sub := &softwareSubmission{label: batch.label, done: make(chan struct{})}
	err := b.enqueue(func() {
		defer close(sub.done)
		sub.status = runBatch(batch)
		if sub.status == CommandStatusSuccess && after != nil {
			after()
		}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// runBatch executes the commands of a batch in order and stops at the first failure.
func runBatch(batch *softwareBatch) (status CommandStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = CommandStatusError
		}
	}()
	for _, cmd := range batch.cmds {
		if err := cmd(); err != nil {
			return CommandStatusError
		}
	}
	return CommandStatusSuccess
}

func (b *softwareRendererBackendImpl) BeginFrame(label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameBatch != nil {
		return fmt.Errorf("%w: %s", ErrBatchOpen, b.frameBatch.label)
	}
	b.frameBatch = &softwareBatch{label: label}
	return nil
}

func (b *softwareRendererBackendImpl) BeginLayer(desc LayerDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameBatch == nil {
		return ErrNoBatch
	}
	if b.layerOpen {
		return fmt.Errorf("%w: layer still open", ErrBatchOpen)
	}
	b.layerOpen = true

	if desc.LoadAction == LoadActionClear {
		fill := toNRGBA([4]float32{float32(desc.ClearColor.R), float32(desc.ClearColor.G), float32(desc.ClearColor.B), float32(desc.ClearColor.A)})
		b.frameBatch.cmds = append(b.frameBatch.cmds, func() error {
			draw.Draw(b.frame, b.frame.Rect, image.NewUniform(fill), image.Point{}, draw.Src)
			return nil
		})
	}
	return nil
}

func (b *softwareRendererBackendImpl) DrawCall(
	p pipeline.Pipeline,
	meshProvider bind_group_provider.BindGroupProvider,
	bindGroups []bind_group_provider.BindGroupProvider,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameBatch == nil || !b.layerOpen {
		return ErrNoBatch
	}
	program, ok := p.Pipeline().(*softwareRenderProgram)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotReady, p.PipelineKey())
	}
	vertexBuffer, err := asSoftwareBuffer(meshProvider.VertexBuffer())
	if err != nil {
		return err
	}
	indexBuffer, err := asSoftwareBuffer(meshProvider.IndexBuffer())
	if err != nil {
		return err
	}
	res := make(softwareResources, len(bindGroups))
	for i, bg := range bindGroups {
		group, ok := bg.BindGroup().(*softwareBindGroup)
		if !ok {
			return fmt.Errorf("%w: %s has no bind group", ErrBindingMissing, bg.Label())
		}
		res[i] = group
	}

	indexCount := meshProvider.IndexCount()
	b.frameBatch.cmds = append(b.frameBatch.cmds, func() error {
		return b.rasterize(program, vertexBuffer, indexBuffer, indexCount, res)
	})
	return nil
}

// rasterize runs one indexed draw into the frame. The vertex kernel runs once per vertex and
// the fragment kernel once per triangle; triangles of the same colour are filled as one path
// so shared edges are not blended twice.
func (b *softwareRendererBackendImpl) rasterize(
	program *softwareRenderProgram,
	vertexBuffer, indexBuffer *softwareBuffer,
	indexCount int,
	res softwareResources,
) error {
	if uint64(indexCount)*2 > indexBuffer.Size() {
		return fmt.Errorf("%w: %d indices in %s", errBufferOverrun, indexCount, indexBuffer.label)
	}
	vertexCount := vertexBuffer.Size() / program.vertexStride

	outputs := make([]shader.VertexOutput, vertexCount)
	for v := uint64(0); v < vertexCount; v++ {
		outputs[v] = program.vertex(vertexBuffer.data[v*program.vertexStride:(v+1)*program.vertexStride], res)
	}

	width := float32(b.frame.Rect.Dx())
	height := float32(b.frame.Rect.Dy())

	type point struct{ x, y float32 }
	paths := make(map[color.NRGBA][][3]point)
	var order []color.NRGBA

	for t := 0; t+2 < indexCount; t += 3 {
		var tri [3]shader.VertexOutput
		for k := range 3 {
			idx := uint64(binary.LittleEndian.Uint16(indexBuffer.data[(t+k)*2:]))
			if idx >= vertexCount {
				return fmt.Errorf("%w: index %d of %d vertices", errBufferOverrun, idx, vertexCount)
			}
			tri[k] = outputs[idx]
		}

		var ndc [3]point
		visible := true
		for k, out := range tri {
			w := out.Position[3]
			if w <= 0 {
				visible = false
				break
			}
			ndc[k] = point{out.Position[0] / w, out.Position[1] / w}
		}
		if !visible {
			continue
		}

		area := (ndc[1].x-ndc[0].x)*(ndc[2].y-ndc[0].y) - (ndc[2].x-ndc[0].x)*(ndc[1].y-ndc[0].y)
		if area == 0 {
			continue
		}
		front := area > 0
		if program.frontFace == wgpu.FrontFaceCW {
			front = !front
		}
		if (program.cullMode == wgpu.CullModeBack && !front) || (program.cullMode == wgpu.CullModeFront && front) {
			continue
		}

		var screen [3]point
		for k, n := range ndc {
			screen[k] = point{(n.x + 1) / 2 * width, (1 - n.y) / 2 * height}
		}
		// The rasterizer sums signed coverage, so every triangle is wound the same way.
		if area < 0 {
			screen[1], screen[2] = screen[2], screen[1]
		}

		c := toNRGBA(program.fragment(tri[0], res))
		if _, ok := paths[c]; !ok {
			order = append(order, c)
		}
		paths[c] = append(paths[c], screen)
	}

	op := draw.Src
	if program.blend {
		op = draw.Over
	}
	for _, c := range order {
		b.rasterizer.Reset(b.frame.Rect.Dx(), b.frame.Rect.Dy())
		b.rasterizer.DrawOp = op
		for _, tri := range paths[c] {
			b.rasterizer.MoveTo(tri[0].x, tri[0].y)
			b.rasterizer.LineTo(tri[1].x, tri[1].y)
			b.rasterizer.LineTo(tri[2].x, tri[2].y)
			b.rasterizer.ClosePath()
		}
		b.rasterizer.Draw(b.frame, b.frame.Rect, image.NewUniform(c), image.Point{})
	}
	return nil
}

func (b *softwareRendererBackendImpl) EndLayer() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.layerOpen {
		return ErrNoBatch
	}
	b.layerOpen = false
	return nil
}

func (b *softwareRendererBackendImpl) EndFrame() (Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameBatch == nil {
		return nil, ErrNoBatch
	}
	batch := b.frameBatch
	b.frameBatch = nil
	b.layerOpen = false

	return b.submit(batch, b.present)
}

// present publishes a copy of the frame as the snapshot. Runs on the queue goroutine.
func (b *softwareRendererBackendImpl) present() {
	snap := image.NewRGBA(b.frame.Rect)
	copy(snap.Pix, b.frame.Pix)

	b.snapMu.Lock()
	b.snapshot = snap
	b.snapMu.Unlock()
}

func (b *softwareRendererBackendImpl) Snapshot() (image.Image, bool) {
	b.snapMu.Lock()
	defer b.snapMu.Unlock()

	if b.snapshot == nil {
		return nil, false
	}
	return b.snapshot, true
}

func (b *softwareRendererBackendImpl) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	close(b.ops)
	b.mu.Unlock()

	<-b.stopped
	b.pool.Stop()
}

// asSoftwareBuffer unwraps a buffer created by this backend.
func asSoftwareBuffer(buf bind_group_provider.Buffer) (*softwareBuffer, error) {
	if buf == nil {
		return nil, ErrBindingMissing
	}
	sb, ok := buf.(*softwareBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %s was not created by the software backend", buf.Label())
	}
	return sb, nil
}

// toNRGBA converts a straight-alpha float colour to 8-bit, clamping each channel to [0, 1].
func toNRGBA(c [4]float32) color.NRGBA {
	channel := func(v float32) uint8 {
		return uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
	}
	return color.NRGBA{R: channel(c[0]), G: channel(c[1]), B: channel(c[2]), A: channel(c[3])}
}
