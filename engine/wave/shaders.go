package wave

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
)

const (
	// ComputePipelineKey is the pipeline key of the profile transform.
	ComputePipelineKey = "profile_kernel"

	// RenderPipelineKey is the pipeline key of the layer draw.
	RenderPipelineKey = "wave_profile"

	// RenderPipelineLabel is the debug label of the compiled render pipeline.
	RenderPipelineLabel = "Render Pipeline"
)

//go:embed assets/profile_kernel.wgsl
var profileKernelSource string

//go:embed assets/pass_through_vertex.wgsl
var passThroughVertexSource string

//go:embed assets/pass_through_fragment.wgsl
var passThroughFragmentSource string

// Kernels are the three shaders the pipeline is built from.
type Kernels struct {
	Compute  shader.Shader
	Vertex   shader.Shader
	Fragment shader.Shader
}

// DefaultKernels builds the embedded kernels for cfg. The compute kernel's workgroup size is
// cfg.ThreadsPerGroup(), and every shader carries its Go rendition for the software backend.
//
// Parameters:
//   - cfg: the pipeline configuration
//
// Returns:
//   - Kernels: the pre-processed shaders
//   - error: an error if a source fails to pre-process or parse
func DefaultKernels(cfg Config) (Kernels, error) {
	threads := cfg.ThreadsPerGroup()
	if threads <= 0 {
		return Kernels{}, fmt.Errorf("%w: %d vertices, width %d", ErrThreadGroupWidth, cfg.VertexCount(), cfg.ThreadGroupWidth)
	}

	compute, err := shader.NewShader(ComputePipelineKey, shader.ShaderTypeCompute, profileKernelSource,
		shader.WithPreProcessor(shader.NewPreProcessor(shader.WithWorkgroupSize(uint32(threads)))),
		shader.WithComputeKernel(ProfileKernel),
	)
	if err != nil {
		return Kernels{}, fmt.Errorf("profile kernel: %w", err)
	}
	vertex, err := shader.NewShader("pass_through_vertex", shader.ShaderTypeVertex, passThroughVertexSource,
		shader.WithVertexKernel(PassThroughVertex),
	)
	if err != nil {
		return Kernels{}, fmt.Errorf("vertex kernel: %w", err)
	}
	fragment, err := shader.NewShader("pass_through_fragment", shader.ShaderTypeFragment, passThroughFragmentSource,
		shader.WithFragmentKernel(PassThroughFragment),
	)
	if err != nil {
		return Kernels{}, fmt.Errorf("fragment kernel: %w", err)
	}

	return Kernels{Compute: compute, Vertex: vertex, Fragment: fragment}, nil
}
