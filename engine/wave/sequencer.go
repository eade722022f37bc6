package wave

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/wave-profile/engine/params"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

// ClearColor is the colour the first layer clears the target to.
var ClearColor = wgpu.Color{R: 0, G: 0, B: 0, A: 1}

// LayerConstants returns the frame constants of count layers in draw order. The running value
// starts at opaque white and has its red and green channels scaled by falloff before every
// layer, so layer k (1-indexed) carries falloff^k.
//
// Parameters:
//   - count: the number of layers
//   - falloff: the per-layer factor
//
// Returns:
//   - []params.FrameConstants: one value per layer
func LayerConstants(count int, falloff float32) []params.FrameConstants {
	out := make([]params.FrameConstants, count)
	running := params.NewFrameConstants()
	for k := range out {
		running.Darken(falloff)
		out[k] = running
	}
	return out
}

type sequencer struct {
	r           renderer.Renderer
	pipelineKey string
	constants   []params.FrameConstants
}

// Sequencer records the layered draw of every profile into one render batch and presents it.
type Sequencer interface {
	// Render draws the profiles back to front. Layer k draws meshes[len-1-k] with constants[k]
	// bound at group 0; the first layer clears, later layers load.
	//
	// Parameters:
	//   - meshes: one mesh provider per profile, in creation order
	//   - constants: one frame constants provider per layer, in draw order
	//
	// Returns:
	//   - renderer.Submission: the submitted frame batch, which has already been presented
	//   - error: an error if the batch could not be encoded
	Render(meshes, constants []bind_group_provider.BindGroupProvider) (renderer.Submission, error)

	// Layers returns the number of layers drawn per frame.
	Layers() int
}

var _ Sequencer = &sequencer{}

// NewSequencer creates a sequencer drawing layers with the render pipeline at pipelineKey.
//
// Parameters:
//   - r: the renderer the render pipeline is registered with
//   - pipelineKey: the key of the registered render pipeline
//   - layers: the number of profiles
//   - falloff: the per-layer colour factor
//
// Returns:
//   - Sequencer: the sequencer
func NewSequencer(r renderer.Renderer, pipelineKey string, layers int, falloff float32) Sequencer {
	return &sequencer{
		r:           r,
		pipelineKey: pipelineKey,
		constants:   LayerConstants(layers, falloff),
	}
}

func (s *sequencer) Layers() int {
	return len(s.constants)
}

func (s *sequencer) Render(meshes, constants []bind_group_provider.BindGroupProvider) (renderer.Submission, error) {
	n := len(s.constants)
	if len(meshes) != n || len(constants) != n {
		return nil, fmt.Errorf("wave: %d layers, got %d meshes and %d constants", n, len(meshes), len(constants))
	}

	// all layer constants are queued before the batch so each draw reads its own slot
	writes := make([]bind_group_provider.BufferWrite, n)
	for k, c := range s.constants {
		binding, _ := constants[k].Binding(0)
		writes[k] = bind_group_provider.BufferWrite{
			Provider: constants[k],
			Binding:  0,
			Offset:   binding.Offset,
			Data:     c.Marshal(),
		}
	}
	if err := s.r.WriteBuffers(writes); err != nil {
		return nil, fmt.Errorf("write frame constants: %w", err)
	}

	if err := s.r.BeginFrame(FrameBatchLabel); err != nil {
		return nil, err
	}
	for k := range n {
		if err := s.drawLayer(k, meshes[n-1-k], constants[k]); err != nil {
			return nil, s.abort(err)
		}
	}
	return s.r.EndFrame()
}

func (s *sequencer) drawLayer(k int, mesh, constants bind_group_provider.BindGroupProvider) error {
	load := renderer.LoadActionLoad
	if k == 0 {
		load = renderer.LoadActionClear
	}
	if err := s.r.BeginLayer(renderer.LayerDescriptor{
		Label:      LayerPassLabel,
		DebugGroup: LayerDebugGroup,
		LoadAction: load,
		ClearColor: ClearColor,
	}); err != nil {
		return err
	}
	if err := s.r.DrawCall(s.pipelineKey, mesh, []bind_group_provider.BindGroupProvider{constants}); err != nil {
		return fmt.Errorf("draw %s: %w", mesh.Label(), err)
	}
	return s.r.EndLayer()
}

// abort submits the partial batch so the next frame can begin a new one.
func (s *sequencer) abort(err error) error {
	sub, endErr := s.r.EndFrame()
	if endErr != nil {
		return errors.Join(err, endErr)
	}
	sub.Wait()
	return err
}
