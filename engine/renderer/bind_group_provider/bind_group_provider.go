package bind_group_provider

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// bindings holds the buffer ranges bound by this provider, keyed by binding index.
	bindings map[int]BufferBinding

	// bindGroup is the backend's bind group object, or nil if not initialized with the Renderer.
	// It is a *wgpu.BindGroup on the wgpu backend.
	bindGroup any

	// The following fields describe the geometry drawn through this provider. They are shared
	// buffers owned by the caller, so Release does not free them.

	vertexBuffer Buffer
	indexBuffer  Buffer
	indexCount   int
}

// BindGroupProvider describes the GPU resources one draw or dispatch binds: a set of buffer
// ranges for a bind group and, for draws, the vertex and index buffers.
//
// Usage pattern:
//  1. The caller creates buffers through the Renderer and a provider naming their ranges
//  2. The caller calls Renderer.InitBindGroup(provider, pipeline, group) to create the backend bind group
//  3. The provider is handed to DispatchCompute or DrawCall
type BindGroupProvider interface {
	// Release releases the backend bind group held by this provider. The bound buffers are not released.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the backend bind group object.
	// Returns nil if the provider has not been initialized.
	//
	// Returns:
	//   - any: the bind group or nil
	BindGroup() any

	// Binding returns the buffer range bound at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - BufferBinding: the bound range
	//   - bool: false if nothing is bound at that index
	Binding(binding int) (BufferBinding, bool)

	// Bindings returns all bound ranges keyed by binding index.
	//
	// Returns:
	//   - map[int]BufferBinding: the bound ranges
	Bindings() map[int]BufferBinding

	// Buffer returns the buffer bound at a binding index, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - Buffer: the bound buffer or nil
	Buffer(binding int) Buffer

	// VertexBuffer returns the vertex buffer drawn through this provider, or nil.
	//
	// Returns:
	//   - Buffer: the vertex buffer or nil
	VertexBuffer() Buffer

	// IndexBuffer returns the uint16 index buffer drawn through this provider, or nil.
	//
	// Returns:
	//   - Buffer: the index buffer or nil
	IndexBuffer() Buffer

	// IndexCount returns the number of indices for draw calls.
	//
	// Returns:
	//   - int: the index count
	IndexCount() int

	// SetBindGroup sets the backend bind group after initialization.
	// Called by Renderer.InitBindGroup().
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg any)

	// SetBinding binds a buffer range at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//   - b: the buffer range
	SetBinding(binding int, b BufferBinding)

	// SetVertexBuffer sets the vertex buffer.
	//
	// Parameters:
	//   - buf: the vertex buffer
	SetVertexBuffer(buf Buffer)

	// SetIndexBuffer sets the index buffer and the number of indices drawn from it.
	//
	// Parameters:
	//   - buf: the uint16 index buffer
	//   - count: the index count
	SetIndexBuffer(buf Buffer, count int)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		bindings: make(map[int]BufferBinding),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() any {
	return p.bindGroup
}

func (p *bindGroupProvider) Binding(binding int) (BufferBinding, bool) {
	b, ok := p.bindings[binding]
	return b, ok
}

func (p *bindGroupProvider) Bindings() map[int]BufferBinding {
	return p.bindings
}

func (p *bindGroupProvider) Buffer(binding int) Buffer {
	return p.bindings[binding].Buffer
}

func (p *bindGroupProvider) VertexBuffer() Buffer {
	return p.vertexBuffer
}

func (p *bindGroupProvider) IndexBuffer() Buffer {
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	return p.indexCount
}

func (p *bindGroupProvider) SetBindGroup(bg any) {
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBinding(binding int, b BufferBinding) {
	p.bindings[binding] = b
}

func (p *bindGroupProvider) SetVertexBuffer(buf Buffer) {
	p.vertexBuffer = buf
}

func (p *bindGroupProvider) SetIndexBuffer(buf Buffer, count int) {
	p.indexBuffer = buf
	p.indexCount = count
}

func (p *bindGroupProvider) Release() {
	if r, ok := p.bindGroup.(interface{ Release() }); ok {
		r.Release()
	}
	p.bindGroup = nil
}
