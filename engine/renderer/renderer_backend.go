package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware selects the CPU reference device. It needs no GPU or window and
	// renders into an in-memory RGBA frame.
	BackendTypeSoftware
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return fmt.Sprintf("RendererBackendType(%d)", int(t))
	}
}

// ParseBackendType maps a backend name to its RendererBackendType.
//
// Parameters:
//   - name: "wgpu" or "software"
//
// Returns:
//   - RendererBackendType: the matching backend type
//   - error: an error if the name is unknown
func ParseBackendType(name string) (RendererBackendType, error) {
	switch name {
	case "wgpu":
		return BackendTypeWGPU, nil
	case "software":
		return BackendTypeSoftware, nil
	default:
		return 0, fmt.Errorf("unknown renderer backend %q", name)
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values (8, 16) are adapter-dependent and may not be available.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA8x MSAASampleCount = 8

	// MSAA16x enables 16× multisample anti-aliasing. Adapter-dependent; not all hardware supports this.
	MSAA16x MSAASampleCount = 16
)

// LoadAction selects what a render layer does with the colour target before drawing.
type LoadAction int

const (
	// LoadActionClear clears the target to the layer's clear colour.
	LoadActionClear LoadAction = iota

	// LoadActionLoad keeps the contents drawn by earlier layers.
	LoadActionLoad
)

func (a LoadAction) String() string {
	if a == LoadActionClear {
		return "clear"
	}
	return "load"
}

// CommandStatus is the completion status of a submitted command batch.
type CommandStatus int

const (
	CommandStatusSuccess CommandStatus = iota
	CommandStatusError
	CommandStatusDeviceLost
	CommandStatusUnknown
)

func (s CommandStatus) String() string {
	switch s {
	case CommandStatusSuccess:
		return "success"
	case CommandStatusError:
		return "error"
	case CommandStatusDeviceLost:
		return "device_lost"
	default:
		return "unknown"
	}
}

// Submission is a command batch handed to the device queue.
type Submission interface {
	// Label returns the label the batch was encoded with.
	Label() string

	// Wait blocks until the device has finished executing the batch and returns its status.
	// Wait may be called more than once and from any goroutine.
	Wait() CommandStatus
}

// Limits are the device limits the orchestration layer validates its layout against.
type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32
	MinUniformBufferOffsetAlignment   uint32
}

// DefaultLimits are the WebGPU baseline limits every conforming adapter supports.
var DefaultLimits = Limits{
	MaxComputeInvocationsPerWorkgroup: 256,
	MinUniformBufferOffsetAlignment:   256,
}

// LayerDescriptor describes one render pass of a layered frame.
type LayerDescriptor struct {
	Label      string
	DebugGroup string
	LoadAction LoadAction
	ClearColor wgpu.Color
}

var (
	// ErrUnsupportedDevice is returned when no usable adapter or device could be acquired.
	ErrUnsupportedDevice = errors.New("renderer: GPU rendering is not supported on this device")

	// ErrPipelineNotReady is returned when a dispatch or draw names a pipeline that has no compiled object.
	ErrPipelineNotReady = errors.New("renderer: pipeline not ready")

	// ErrNoBatch is returned when a command is encoded outside of a Begin/End pair.
	ErrNoBatch = errors.New("renderer: no batch is being encoded")

	// ErrBatchOpen is returned when a batch is begun while another of the same kind is still open.
	ErrBatchOpen = errors.New("renderer: batch already open")

	// ErrBindingMissing is returned when a bind group entry has no buffer bound on the provider.
	ErrBindingMissing = errors.New("renderer: binding has no buffer")

	// ErrNoSurface is returned by the wgpu backend when it is constructed without a surface source.
	ErrNoSurface = errors.New("renderer: no surface source")
)

// RendererBackend is the device capability the Renderer drives. It covers buffer allocation,
// pipeline creation and command submission; everything above it is backend agnostic.
type RendererBackend interface {
	// ConfigureSurface is a wrapper for boilerplate logic required when calling ConfigureSurface on a surface.
	// This is required when the surface size changes, such as when the window is resized.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface or its attachments could not be configured
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	// Takes effect on the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// Limits returns the limits of the acquired device.
	//
	// Returns:
	//   - Limits: the device limits
	Limits() Limits

	// CreateBuffer allocates a device buffer and optionally fills it.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes
	//   - usage: the usage flags; CopyDst is added when contents are supplied
	//   - contents: initial contents, or nil for a zeroed buffer
	//
	// Returns:
	//   - bind_group_provider.Buffer: the new buffer
	//   - error: an error if the allocation failed
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (bind_group_provider.Buffer, error)

	// WriteBuffers queues buffer writes. Writes are ordered before any batch submitted afterwards.
	//
	// Parameters:
	//   - writes: the writes to queue
	//
	// Returns:
	//   - error: an error if a write has no target buffer or overruns it
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// ReadBuffer copies the contents of a buffer back to host memory once all queued work touching it has finished.
	//
	// Parameters:
	//   - buf: the buffer to read; it must have been created with CopySrc usage on the wgpu backend
	//
	// Returns:
	//   - []byte: a copy of the buffer contents
	//   - error: an error if the copy or mapping failed
	ReadBuffer(buf bind_group_provider.Buffer) ([]byte, error)

	// RegisterRenderPipeline is a high-level function that creates a render pipeline based on the provided pipeline.
	// It handles creating the shader module, pipeline layout, and render pipeline based on the pipeline's configuration.
	//
	// Parameters:
	//   - p: the pipeline object containing the source code and configuration for the pipeline
	//
	// Returns:
	//   - error: an error if the pipeline could not be created, otherwise nil
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// RegisterComputePipeline is a high-level function that creates a compute pipeline based on the provided pipeline.
	// It handles creating the shader module and compute pipeline based on the pipeline's configuration.
	//
	// Parameters:
	//   - p: the pipeline object containing the source code and configuration for the pipeline
	//
	// Returns:
	//   - error: an error if the pipeline could not be created, otherwise nil
	RegisterComputePipeline(p pipeline.Pipeline) error

	// InitBindGroup creates the backend bind group for one group of a registered pipeline from the
	// buffer ranges bound on the provider, and stores it on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider holding the buffer ranges
	//   - p: the registered pipeline whose layout the bind group must match
	//   - group: the bind group index
	//
	// Returns:
	//   - error: an error if a binding is missing or the bind group could not be created
	InitBindGroup(provider bind_group_provider.BindGroupProvider, p pipeline.Pipeline, group int) error

	// BeginComputeFrame creates a single command encoder for batching all compute dispatches
	// within a frame into one GPU submission. Must be paired with EndComputeFrame after all
	// DispatchCompute calls for the frame.
	//
	// Parameters:
	//   - label: the batch label
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame(label string) error

	// DispatchCompute encodes a compute pass within the current batched compute frame.
	// BeginComputeFrame must be called before any DispatchCompute calls.
	//
	// Parameters:
	//   - p: the registered compute pipeline
	//   - computeProvider: the BindGroupProvider whose bind group is set at group 0
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//
	// Returns:
	//   - error: an error if no compute batch is open or the provider is not initialized
	DispatchCompute(p pipeline.Pipeline, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// EndComputeFrame finishes the batched compute command encoder and submits the resulting
	// command buffer to the GPU queue.
	//
	// Returns:
	//   - Submission: the submitted batch
	//   - error: an error if the batch could not be finished
	EndComputeFrame() (Submission, error)

	// BeginFrame acquires the frame target and creates the frame command encoder.
	//
	// Parameters:
	//   - label: the batch label
	//
	// Returns:
	//   - error: an error if the target or encoder could not be acquired
	BeginFrame(label string) error

	// BeginLayer begins a render pass over the frame target.
	//
	// Parameters:
	//   - desc: the pass label, debug group, load action and clear colour
	//
	// Returns:
	//   - error: an error if no frame is open or a layer is already open
	BeginLayer(desc LayerDescriptor) error

	// DrawCall records one indexed draw of uint16 indices into the open layer.
	//
	// Parameters:
	//   - p: the registered render pipeline
	//   - meshProvider: the provider holding the vertex buffer, index buffer and index count
	//   - bindGroups: the providers whose bind groups are set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if no layer is open
	DrawCall(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider) error

	// EndLayer ends the open render pass.
	//
	// Returns:
	//   - error: an error if no layer is open
	EndLayer() error

	// EndFrame finishes and submits the frame batch, then presents the frame target.
	//
	// Returns:
	//   - Submission: the submitted batch
	//   - error: an error if the batch could not be finished
	EndFrame() (Submission, error)

	// Snapshot returns the last presented frame when the backend renders to host memory.
	//
	// Returns:
	//   - image.Image: the last presented frame
	//   - bool: false when the backend presents to a surface or nothing was presented yet
	Snapshot() (image.Image, bool)

	// Release frees the device and every backend-owned object.
	Release()
}
