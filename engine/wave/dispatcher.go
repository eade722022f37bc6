package wave

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
)

type dispatcher struct {
	r           renderer.Renderer
	pipelineKey string
	vertexCount int
	width       int
}

// Dispatcher records one compute dispatch per profile into a single batch and waits for it.
type Dispatcher interface {
	// Dispatch transforms every profile. Each provider binds the base vertices at 0, that profile's
	// output buffer at 1 and its WaveParams entry at 2. The batch is submitted once and Dispatch
	// returns after it completes.
	//
	// Parameters:
	//   - providers: one compute bind group provider per profile, in creation order
	//
	// Returns:
	//   - renderer.CommandStatus: the completion status of the compute batch
	//   - error: an error if the batch could not be encoded
	Dispatch(providers []bind_group_provider.BindGroupProvider) (renderer.CommandStatus, error)

	// WorkGroups returns the thread group counts passed to every dispatch.
	WorkGroups() [3]uint32

	// ThreadsPerGroup returns the number of threads in each thread group.
	ThreadsPerGroup() int
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher checks the thread group geometry of cfg against the device and the kernel.
//
// Parameters:
//   - r: the renderer the compute pipeline is registered with
//   - kernel: the compute shader, whose declared workgroup size must equal threads per group
//   - pipelineKey: the key of the registered compute pipeline
//   - cfg: the pipeline configuration
//
// Returns:
//   - Dispatcher: the dispatcher
//   - error: ErrThreadGroupWidth, ErrThreadGroupLimit or ErrWorkgroupMismatch
func NewDispatcher(r renderer.Renderer, kernel shader.Shader, pipelineKey string, cfg Config) (Dispatcher, error) {
	d := &dispatcher{
		r:           r,
		pipelineKey: pipelineKey,
		vertexCount: cfg.VertexCount(),
		width:       cfg.ThreadGroupWidth,
	}
	threads, err := threadsPerGroup(d.vertexCount, d.width)
	if err != nil {
		return nil, err
	}

	limit := r.Limits().MaxComputeInvocationsPerWorkgroup
	if uint32(threads) > limit {
		return nil, fmt.Errorf("%w: %d threads, limit %d", ErrThreadGroupLimit, threads, limit)
	}
	if kernel != nil {
		declared := kernel.WorkgroupSize()
		if declared != [3]uint32{uint32(threads), 1, 1} {
			return nil, fmt.Errorf("%w: kernel declares %v, want %d", ErrWorkgroupMismatch, declared, threads)
		}
	}
	return d, nil
}

// threadsPerGroup splits vertexCount into width groups, refusing to truncate.
func threadsPerGroup(vertexCount, width int) (int, error) {
	if width <= 0 || vertexCount%width != 0 {
		return 0, fmt.Errorf("%w: %d vertices, width %d", ErrThreadGroupWidth, vertexCount, width)
	}
	return vertexCount / width, nil
}

func (d *dispatcher) WorkGroups() [3]uint32 {
	return [3]uint32{uint32(d.width), 1, 1}
}

func (d *dispatcher) ThreadsPerGroup() int {
	return d.vertexCount / d.width
}

func (d *dispatcher) Dispatch(providers []bind_group_provider.BindGroupProvider) (renderer.CommandStatus, error) {
	if _, err := threadsPerGroup(d.vertexCount, d.width); err != nil {
		return renderer.CommandStatusUnknown, err
	}
	if err := d.r.BeginComputeFrame(ComputeBatchLabel); err != nil {
		return renderer.CommandStatusUnknown, err
	}

	groups := d.WorkGroups()
	for _, p := range providers {
		if err := d.r.DispatchCompute(d.pipelineKey, p, groups); err != nil {
			// close the batch so the next frame can open one
			if sub, endErr := d.r.EndComputeFrame(); endErr == nil {
				sub.Wait()
			} else {
				err = errors.Join(err, endErr)
			}
			return renderer.CommandStatusUnknown, fmt.Errorf("dispatch %s: %w", p.Label(), err)
		}
	}

	sub, err := d.r.EndComputeFrame()
	if err != nil {
		return renderer.CommandStatusUnknown, err
	}
	return sub.Wait(), nil
}
