package shader

// Resources resolves the byte range bound at a group and binding for the duration of one
// kernel invocation. Storage bindings alias the backing buffer, so writes to the returned
// slice land in the buffer.
type Resources interface {
	Binding(group, binding int) []byte
}

// Invocation identifies one compute thread.
type Invocation struct {
	GlobalID    [3]uint32
	LocalID     [3]uint32
	WorkgroupID [3]uint32
}

// ComputeKernel runs one compute thread.
type ComputeKernel func(inv Invocation, res Resources)

// VertexOutput is the interpolant set produced by a vertex kernel: a clip-space position
// and an RGBA colour.
type VertexOutput struct {
	Position [4]float32
	Colour   [4]float32
}

// VertexKernel transforms one vertex. vertex holds ArrayStride bytes of the bound vertex buffer.
type VertexKernel func(vertex []byte, res Resources) VertexOutput

// FragmentKernel shades a fragment from the interpolated vertex output, returning straight RGBA.
type FragmentKernel func(in VertexOutput, res Resources) [4]float32
