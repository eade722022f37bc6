package bind_group_provider

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBinding binds a whole buffer at a binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBinding(binding int, buf Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindings[binding] = BufferBinding{Buffer: buf}
	}
}

// WithBindingRange binds size bytes of a buffer starting at offset.
//
// Parameters:
//   - binding: the binding index
//   - buf: the buffer
//   - offset: the byte offset of the range
//   - size: the byte size of the range
//
// Returns:
//   - BindGroupProviderOption: a function that sets the range for the specified binding
func WithBindingRange(binding int, buf Buffer, offset, size uint64) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindings[binding] = BufferBinding{Buffer: buf, Offset: offset, Size: size}
	}
}

// WithVertexBuffer sets the vertex buffer drawn through this provider.
//
// Parameters:
//   - buf: the vertex buffer
//
// Returns:
//   - BindGroupProviderOption: a function that sets the vertex buffer
func WithVertexBuffer(buf Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.vertexBuffer = buf
	}
}

// WithIndexBuffer sets the uint16 index buffer and the number of indices drawn from it.
//
// Parameters:
//   - buf: the index buffer
//   - count: the index count
//
// Returns:
//   - BindGroupProviderOption: a function that sets the index buffer
func WithIndexBuffer(buf Buffer, count int) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.indexBuffer = buf
		p.indexCount = count
	}
}
