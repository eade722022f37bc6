package renderer

import (
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// SurfaceSource supplies the presentable surface for the wgpu backend. window.Window satisfies it.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// CommandKind identifies an encoded command reported to a CommandObserver.
type CommandKind int

const (
	CommandKindDispatch CommandKind = iota
	CommandKindLayer
	CommandKindDraw
	CommandKindSubmit
)

func (k CommandKind) String() string {
	switch k {
	case CommandKindDispatch:
		return "dispatch"
	case CommandKindLayer:
		return "layer"
	case CommandKindDraw:
		return "draw"
	case CommandKindSubmit:
		return "submit"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is one encoded command as seen by a CommandObserver. Only the fields relevant to Kind are set.
type Command struct {
	Kind       CommandKind
	Batch      string
	Pipeline   string
	Provider   string
	WorkGroups [3]uint32
	Layer      LayerDescriptor
	IndexCount int
}

// CommandObserver is called synchronously for every command the Renderer encodes.
type CommandObserver func(cmd Command)

// StatusHook can force the completion status of a batch by label. Returning CommandStatusSuccess
// leaves the device status untouched.
type StatusHook func(label string) CommandStatus

// hookedSubmission applies a StatusHook on top of the device status.
type hookedSubmission struct {
	Submission
	hook StatusHook
}

func (s hookedSubmission) Wait() CommandStatus {
	status := s.Submission.Wait()
	if forced := s.hook(s.Label()); forced != CommandStatusSuccess {
		return forced
	}
	return status
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend
	logger      *zap.Logger

	observer   CommandObserver
	statusHook StatusHook

	// batch labels of the open compute and frame batches, for observer reports
	computeLabel string
	frameLabel   string

	// Pre-creation config collected from builder options
	surfaceSource        SurfaceSource
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
	width, height        int
	workers              int
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API designed to simplify rendering tasks into a streamlined and idiomatic flow.
// The Renderer manages a cache of pipelines keyed by pipeline key and drives one RendererBackend,
// selected at construction. Dispatches and draws name their pipeline by key.
type Renderer interface {
	// BackendType returns the backend the Renderer was constructed with.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	BackendType() RendererBackendType

	// Limits returns the limits of the underlying device.
	//
	// Returns:
	//   - Limits: the device limits
	Limits() Limits

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves the entire cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding GPU
	// pipeline objects (render or compute) via the backend, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate GPU resource creation.
	// Registration stops at the first failure; the failed pipeline is not cached and stays unready.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error naming the pipeline key if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Resize configures the underlying backend to handle a new surface size.
	// This should be called when re-sizing the window or when the surface size should change.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be reconfigured
	Resize(width, height int) error

	// SetPresentMode sets the surface present mode. Takes effect on the next Resize.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// CreateBuffer allocates a device buffer and optionally fills it.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes
	//   - usage: the usage flags
	//   - contents: initial contents, or nil
	//
	// Returns:
	//   - bind_group_provider.Buffer: the new buffer
	//   - error: an error if the allocation failed
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (bind_group_provider.Buffer, error)

	// WriteBuffers queues buffer writes ahead of the next submitted batch.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	//
	// Returns:
	//   - error: an error if a write has no target or overruns it
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// ReadBuffer copies a buffer back to host memory after the queued work touching it completes.
	//
	// Parameters:
	//   - buf: the buffer to read
	//
	// Returns:
	//   - []byte: the buffer contents
	//   - error: an error if the readback failed
	ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error)

	// InitBindGroup creates the bind group for one group of a registered pipeline and stores it on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider holding the buffer ranges
	//   - pipelineKey: the key of the registered pipeline
	//   - group: the bind group index
	//
	// Returns:
	//   - error: an error if the pipeline is unknown or the bind group could not be created
	InitBindGroup(provider bind_group_provider.BindGroupProvider, pipelineKey string, group int) error

	// BeginComputeFrame opens the compute batch. Must be paired with EndComputeFrame.
	//
	// Parameters:
	//   - label: the batch label
	//
	// Returns:
	//   - error: an error if the batch could not be opened
	BeginComputeFrame(label string) error

	// DispatchCompute encodes a dispatch of the cached compute pipeline into the open compute batch.
	//
	// Parameters:
	//   - pipelineKey: the key of the cached compute pipeline
	//   - computeProvider: the provider whose bind group is set at group 0
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: an error if the pipeline is not cached or not ready, or no batch is open
	DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// EndComputeFrame submits the compute batch.
	//
	// Returns:
	//   - Submission: the submitted batch
	//   - error: an error if the batch could not be submitted
	EndComputeFrame() (Submission, error)

	// BeginFrame opens the frame batch over the backend's frame target.
	//
	// Parameters:
	//   - label: the batch label
	//
	// Returns:
	//   - error: an error if the frame target could not be acquired
	BeginFrame(label string) error

	// BeginLayer begins one render pass of the frame.
	//
	// Parameters:
	//   - desc: the layer descriptor
	//
	// Returns:
	//   - error: an error if no frame is open
	BeginLayer(desc LayerDescriptor) error

	// DrawCall records an indexed draw of the cached render pipeline into the open layer.
	//
	// Parameters:
	//   - pipelineKey: the key of the cached render pipeline
	//   - meshProvider: the provider holding the vertex buffer, index buffer and index count
	//   - bindGroups: the providers whose bind groups are set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if the pipeline is not cached or not ready, or no layer is open
	DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider) error

	// EndLayer ends the open render pass.
	//
	// Returns:
	//   - error: an error if no layer is open
	EndLayer() error

	// EndFrame submits the frame batch and presents the frame.
	//
	// Returns:
	//   - Submission: the submitted batch
	//   - error: an error if the batch could not be submitted
	EndFrame() (Submission, error)

	// Snapshot returns the last presented frame when the backend renders to host memory.
	//
	// Returns:
	//   - image.Image: the last presented frame
	//   - bool: false when there is none
	Snapshot() (image.Image, bool)

	// Release frees the backend.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer driving the requested backend.
//
// Parameters:
//   - backendType: the backend to construct
//   - options: functional options such as WithSurfaceSource, WithMSAA or WithLogger
//
// Returns:
//   - Renderer: the new renderer
//   - error: an error wrapping ErrUnsupportedDevice when no device could be acquired
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		logger:        zap.NewNop(),
		width:         800,
		height:        600,
	}

	for _, opt := range options {
		opt(r)
	}

	msaa := MSAA4x // default
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	switch backendType {
	case BackendTypeSoftware:
		r.backend = newSoftwareRendererBackend(r.workers, r.width, r.height)
	case BackendTypeWGPU:
		if r.surfaceSource == nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedDevice, ErrNoSurface)
		}
		backend, err := newWGPURendererBackend(r.surfaceSource.SurfaceDescriptor(), r.forceFallbackAdapter, msaa)
		if err != nil {
			return nil, err
		}
		r.backend = backend
		r.width, r.height = r.surfaceSource.Width(), r.surfaceSource.Height()
	default:
		return nil, fmt.Errorf("%w: unknown backend %s", ErrUnsupportedDevice, backendType)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	if err := r.backend.ConfigureSurface(r.width, r.height); err != nil {
		r.backend.Release()
		return nil, err
	}

	r.logger.Info("renderer ready",
		zap.Stringer("backend", backendType),
		zap.Int("width", r.width),
		zap.Int("height", r.height),
		zap.Uint32("msaa", uint32(msaa)),
	)
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Limits() Limits {
	return r.backend.Limits()
}

func (r *renderer) Resize(width, height int) error {
	return r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("register pipeline %s: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("register pipeline %s: %w", key, err)
			}
		}
		r.pipelineCache[key] = p
		r.logger.Debug("pipeline registered", zap.String("pipeline_key", key))
	}
	return nil
}

// readyPipeline looks up a cached pipeline and checks it was compiled.
func (r *renderer) readyPipeline(key string) (pipeline.Pipeline, error) {
	p := r.Pipeline(key)
	if p == nil || !p.Ready() {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotReady, key)
	}
	return p, nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (bind_group_provider.Buffer, error) {
	return r.backend.CreateBuffer(label, size, usage, contents)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	return r.backend.WriteBuffers(writes)
}

func (r *renderer) ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error) {
	return r.backend.ReadBuffer(buf)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, pipelineKey string, group int) error {
	p, err := r.readyPipeline(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.InitBindGroup(provider, p, group)
}

func (r *renderer) BeginComputeFrame(label string) error {
	if err := r.backend.BeginComputeFrame(label); err != nil {
		return err
	}
	r.computeLabel = label
	return nil
}

func (r *renderer) DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	p, err := r.readyPipeline(pipelineKey)
	if err != nil {
		return err
	}
	if err := r.backend.DispatchCompute(p, computeProvider, workGroupCount); err != nil {
		return err
	}
	r.observe(Command{
		Kind:       CommandKindDispatch,
		Batch:      r.computeLabel,
		Pipeline:   pipelineKey,
		Provider:   computeProvider.Label(),
		WorkGroups: workGroupCount,
	})
	return nil
}

func (r *renderer) EndComputeFrame() (Submission, error) {
	sub, err := r.backend.EndComputeFrame()
	if err != nil {
		return nil, err
	}
	return r.submitted(sub), nil
}

func (r *renderer) BeginFrame(label string) error {
	if err := r.backend.BeginFrame(label); err != nil {
		return err
	}
	r.frameLabel = label
	return nil
}

func (r *renderer) BeginLayer(desc LayerDescriptor) error {
	if err := r.backend.BeginLayer(desc); err != nil {
		return err
	}
	r.observe(Command{Kind: CommandKindLayer, Batch: r.frameLabel, Layer: desc})
	return nil
}

func (r *renderer) DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider) error {
	p, err := r.readyPipeline(pipelineKey)
	if err != nil {
		return err
	}
	if err := r.backend.DrawCall(p, meshProvider, bindGroups); err != nil {
		return err
	}
	r.observe(Command{
		Kind:       CommandKindDraw,
		Batch:      r.frameLabel,
		Pipeline:   pipelineKey,
		Provider:   meshProvider.Label(),
		IndexCount: meshProvider.IndexCount(),
	})
	return nil
}

func (r *renderer) EndLayer() error {
	return r.backend.EndLayer()
}

func (r *renderer) EndFrame() (Submission, error) {
	sub, err := r.backend.EndFrame()
	if err != nil {
		return nil, err
	}
	return r.submitted(sub), nil
}

// submitted reports a submission to the observer and applies the status hook.
func (r *renderer) submitted(sub Submission) Submission {
	r.observe(Command{Kind: CommandKindSubmit, Batch: sub.Label()})
	if r.statusHook != nil {
		return hookedSubmission{Submission: sub, hook: r.statusHook}
	}
	return sub
}

func (r *renderer) observe(cmd Command) {
	if r.observer != nil {
		r.observer(cmd)
	}
}

func (r *renderer) Snapshot() (image.Image, bool) {
	return r.backend.Snapshot()
}

func (r *renderer) Release() {
	r.backend.Release()
}
