package shader

// PreProcessorBuilderOption is a functional option applied to a preProcessor during construction.
type PreProcessorBuilderOption func(*preProcessor)

// WithWorkgroupSize sets the one-dimensional workgroup size emitted for //@wave:workgroup.
// The y and z dimensions are 1.
//
// Parameters:
//   - x: the number of invocations per workgroup
//
// Returns:
//   - PreProcessorBuilderOption: a function that applies the workgroup size to a pre-processor
func WithWorkgroupSize(x uint32) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		p.workgroupSize = [3]uint32{x, 1, 1}
	}
}
