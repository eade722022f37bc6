package shader

// ShaderBuilderOption is a functional option applied to a shader during construction via NewShader.
type ShaderBuilderOption func(*shader)

// WithPreProcessor sets the pre-processor used on the source. Defaults to NewPreProcessor()
// with no workgroup size, so compute sources using //@wave:workgroup need this option.
//
// Parameters:
//   - pp: the pre-processor
//
// Returns:
//   - ShaderBuilderOption: a function that applies the pre-processor option to a shader
func WithPreProcessor(pp PreProcessor) ShaderBuilderOption {
	return func(s *shader) {
		s.pp = pp
	}
}

// WithComputeKernel attaches the Go equivalent of a compute shader.
//
// Parameters:
//   - k: the compute kernel
//
// Returns:
//   - ShaderBuilderOption: a function that applies the kernel to a shader
func WithComputeKernel(k ComputeKernel) ShaderBuilderOption {
	return func(s *shader) {
		s.computeKernel = k
	}
}

// WithVertexKernel attaches the Go equivalent of a vertex shader.
//
// Parameters:
//   - k: the vertex kernel
//
// Returns:
//   - ShaderBuilderOption: a function that applies the kernel to a shader
func WithVertexKernel(k VertexKernel) ShaderBuilderOption {
	return func(s *shader) {
		s.vertexKernel = k
	}
}

// WithFragmentKernel attaches the Go equivalent of a fragment shader.
//
// Parameters:
//   - k: the fragment kernel
//
// Returns:
//   - ShaderBuilderOption: a function that applies the kernel to a shader
func WithFragmentKernel(k FragmentKernel) ShaderBuilderOption {
	return func(s *shader) {
		s.fragmentKernel = k
	}
}
