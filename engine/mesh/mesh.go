// Package mesh builds the shared base geometry that every wave profile is derived from:
// a strip of N columns, each contributing a top and a bottom vertex, stitched together
// with two clockwise triangles per adjacent column pair.
package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPointCount is returned when fewer than two columns are requested.
	ErrPointCount = errors.New("mesh: point count must be at least 2")

	// ErrIndexOverflow is returned when the vertex count cannot be addressed by 16-bit indices.
	ErrIndexOverflow = errors.New("mesh: vertex count exceeds 16-bit index range")
)

// MaxPointCount is the largest column count whose 2N vertices fit in uint16 indices.
const MaxPointCount = (math.MaxUint16 + 1) / 2

// mesh is the implementation of the Mesh interface.
type mesh struct {
	pointCount int
	vertices   []ProfileCoord
	indices    []uint16
}

// Mesh is the immutable base geometry shared read-only by every profile and every frame.
type Mesh interface {
	// PointCount returns the number of columns N the mesh was built from.
	//
	// Returns:
	//   - int: the column count
	PointCount() int

	// VertexCount returns the number of vertices, always 2N.
	//
	// Returns:
	//   - int: the vertex count
	VertexCount() int

	// IndexCount returns the number of triangle indices, always 6(N-1).
	//
	// Returns:
	//   - int: the index count
	IndexCount() int

	// Vertices returns a copy of the vertex list in column order, top vertex first.
	//
	// Returns:
	//   - []ProfileCoord: the vertices
	Vertices() []ProfileCoord

	// Indices returns a copy of the triangle index list.
	//
	// Returns:
	//   - []uint16: the indices, three per triangle
	Indices() []uint16

	// VertexStride returns the byte size of one vertex in VertexBytes.
	//
	// Returns:
	//   - uint64: the stride in bytes
	VertexStride() uint64

	// VertexBytes returns the little-endian encoding of the vertices for GPU upload.
	//
	// Returns:
	//   - []byte: 8 bytes per vertex
	VertexBytes() []byte

	// IndexBytes returns the little-endian uint16 encoding of the indices for GPU upload.
	//
	// Returns:
	//   - []byte: 2 bytes per index
	IndexBytes() []byte
}

var _ Mesh = &mesh{}

// NewMesh generates the base strip for pointCount columns. Column i sits at
// x = 2*(i/(N-1)) - 1 and emits (x, +1) followed by (x, -1). Each column after the
// first adds triangles (a, c, b) and (c, d, b), which wind clockwise with y pointing up.
//
// Parameters:
//   - pointCount: the number of columns N
//
// Returns:
//   - Mesh: the generated mesh
//   - error: ErrPointCount or ErrIndexOverflow if N is out of range
func NewMesh(pointCount int) (Mesh, error) {
	if pointCount < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrPointCount, pointCount)
	}
	if pointCount > MaxPointCount {
		return nil, fmt.Errorf("%w: %d columns need %d vertices", ErrIndexOverflow, pointCount, 2*pointCount)
	}

	m := &mesh{
		pointCount: pointCount,
		vertices:   make([]ProfileCoord, 0, 2*pointCount),
		indices:    make([]uint16, 0, 6*(pointCount-1)),
	}

	last := float64(pointCount - 1)
	for i := range pointCount {
		x := float32(2*(float64(i)/last) - 1)
		m.vertices = append(m.vertices, ProfileCoord{X: x, Y: 1}, ProfileCoord{X: x, Y: -1})

		if i == 0 {
			continue
		}
		a := uint16(2 * (i - 1))
		b, c, d := a+1, a+2, a+3
		m.indices = append(m.indices, a, c, b, c, d, b)
	}

	return m, nil
}

func (m *mesh) PointCount() int {
	return m.pointCount
}

func (m *mesh) VertexCount() int {
	return len(m.vertices)
}

func (m *mesh) IndexCount() int {
	return len(m.indices)
}

func (m *mesh) Vertices() []ProfileCoord {
	out := make([]ProfileCoord, len(m.vertices))
	copy(out, m.vertices)
	return out
}

func (m *mesh) Indices() []uint16 {
	out := make([]uint16, len(m.indices))
	copy(out, m.indices)
	return out
}

func (m *mesh) VertexStride() uint64 {
	var v ProfileCoord
	return uint64(v.Size())
}

func (m *mesh) VertexBytes() []byte {
	buf := make([]byte, 0, len(m.vertices)*int(m.VertexStride()))
	for i := range m.vertices {
		buf = append(buf, m.vertices[i].Marshal()...)
	}
	return buf
}

func (m *mesh) IndexBytes() []byte {
	buf := make([]byte, 2*len(m.indices))
	for i, idx := range m.indices {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], idx)
	}
	return buf
}
