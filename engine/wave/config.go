// Package wave orchestrates the wave profile pipeline: a compute stage transforms the shared
// base strip once per profile, then a render stage draws the transformed strips back to front
// as progressively darker layers.
package wave

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/wave-profile/engine/mesh"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
)

const (
	// DefaultPointCount is the number of columns in the base strip.
	DefaultPointCount = 512

	// DefaultThreadGroupWidth is the number of thread groups each profile dispatch uses.
	DefaultThreadGroupWidth = 4

	// MaxBuffers bounds the number of frames whose GPU work may be outstanding.
	MaxBuffers = 3

	// DefaultLayerFalloff is the factor applied to red and green before every layer is drawn.
	DefaultLayerFalloff = 0.8

	// ComputeBatchLabel labels the compute command batch.
	ComputeBatchLabel = "Compute command buffer"

	// FrameBatchLabel labels the render command batch.
	FrameBatchLabel = "Frame command buffer"

	// LayerPassLabel labels every layer's render pass.
	LayerPassLabel = "render encoder"

	// LayerDebugGroup is pushed around every layer's draw.
	LayerDebugGroup = "draw wave profile"
)

var (
	// ErrThreadGroupWidth is returned when the vertex count does not split evenly into thread groups.
	ErrThreadGroupWidth = errors.New("wave: vertex count is not divisible by the thread group width")

	// ErrThreadGroupLimit is returned when threads per group exceed the device limit.
	ErrThreadGroupLimit = errors.New("wave: threads per group exceed the device limit")

	// ErrWorkgroupMismatch is returned when the compute kernel declares a workgroup size other than threads per group.
	ErrWorkgroupMismatch = errors.New("wave: kernel workgroup size does not match threads per group")

	// ErrStrideAlignment is returned when the parameter stride is not a multiple of the device's uniform offset alignment.
	ErrStrideAlignment = errors.New("wave: parameter stride is not aligned to the uniform offset alignment")

	// ErrMaxInFlight is returned when MaxInFlight is outside [1, MaxBuffers].
	ErrMaxInFlight = errors.New("wave: frames in flight out of range")
)

// Config is the named configuration of the pipeline.
type Config struct {
	// PointCount is the number of columns N in the base strip; the strip has 2N vertices.
	PointCount int

	// QValues are the curvature presets, one profile each, in creation order.
	QValues []float32

	// ParamStride is the byte distance between parameter entries.
	ParamStride int

	// MaxInFlight bounds outstanding frames when Pipelined is set. Serialized frames always
	// use a single slot, so it is validated but otherwise unused.
	MaxInFlight int

	// ThreadGroupWidth is the number of thread groups per profile dispatch.
	ThreadGroupWidth int

	Amplitude    float32
	HeightBase   float32
	HeightScale  float32
	LayerFalloff float32

	// Pipelined lets a frame return before its render batch completes. Profile and constants
	// buffers are then duplicated per in-flight slot.
	Pipelined bool

	// Debug reads back the profile and base buffers every frame.
	Debug bool
}

// DefaultConfig returns the stock wave profile configuration.
//
// Returns:
//   - Config: 512 columns, four profiles, a 256 byte stride and three frames in flight
func DefaultConfig() Config {
	return Config{
		PointCount:       DefaultPointCount,
		QValues:          []float32{0.0, 0.2, 0.4, 0.6},
		ParamStride:      params.RequiredStride,
		MaxInFlight:      MaxBuffers,
		ThreadGroupWidth: DefaultThreadGroupWidth,
		Amplitude:        0.2,
		HeightBase:       -0.5,
		HeightScale:      1.6,
		LayerFalloff:     DefaultLayerFalloff,
	}
}

// VertexCount returns the number of vertices in the base strip.
func (c Config) VertexCount() int {
	return 2 * c.PointCount
}

// ProfileCount returns the number of profiles.
func (c Config) ProfileCount() int {
	return len(c.QValues)
}

// ThreadsPerGroup returns the number of threads in each thread group, or 0 when the width is invalid.
func (c Config) ThreadsPerGroup() int {
	if c.ThreadGroupWidth <= 0 {
		return 0
	}
	return c.VertexCount() / c.ThreadGroupWidth
}

// Validate checks the layout rules that do not depend on a device.
//
// Returns:
//   - error: a wrapped sentinel error describing the first violation
func (c Config) Validate() error {
	if c.PointCount < 2 {
		return fmt.Errorf("%w: got %d", mesh.ErrPointCount, c.PointCount)
	}
	if c.PointCount > mesh.MaxPointCount {
		return fmt.Errorf("%w: %d columns", mesh.ErrIndexOverflow, c.PointCount)
	}
	if len(c.QValues) == 0 {
		return params.ErrNoProfiles
	}
	if c.ThreadGroupWidth <= 0 || c.VertexCount()%c.ThreadGroupWidth != 0 {
		return fmt.Errorf("%w: %d vertices, width %d", ErrThreadGroupWidth, c.VertexCount(), c.ThreadGroupWidth)
	}
	if c.ParamStride != params.RequiredStride {
		return fmt.Errorf("%w: stride %d, want %d", params.ErrStrideMismatch, c.ParamStride, params.RequiredStride)
	}
	if c.MaxInFlight < 1 || c.MaxInFlight > MaxBuffers {
		return fmt.Errorf("%w: %d, want 1..%d", ErrMaxInFlight, c.MaxInFlight, MaxBuffers)
	}
	return nil
}

// slotCount returns the number of resource slots the orchestrator allocates.
func (c Config) slotCount() int {
	if c.Pipelined {
		return c.MaxInFlight
	}
	return 1
}
