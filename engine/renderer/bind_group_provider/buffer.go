package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// Buffer is a device-resident buffer allocated by a renderer backend.
// The wgpu backend wraps a *wgpu.Buffer; the software backend owns a byte slice.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() wgpu.BufferUsage

	// Release frees the buffer. Calling Release more than once is a no-op.
	Release()
}

// BufferBinding is the byte range of a Buffer bound at one binding index.
// A zero Size binds from Offset to the end of the buffer.
type BufferBinding struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// Extent returns the bound size, resolving a zero Size to the remainder of the buffer.
//
// Returns:
//   - uint64: the number of bytes visible through the binding
func (b BufferBinding) Extent() uint64 {
	if b.Size != 0 {
		return b.Size
	}
	return b.Buffer.Size() - b.Offset
}
