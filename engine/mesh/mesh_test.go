package mesh

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMeshCounts(t *testing.T) {
	tests := []struct {
		name        string
		pointCount  int
		wantVerts   int
		wantIndices int
	}{
		{name: "minimum strip", pointCount: 2, wantVerts: 4, wantIndices: 6},
		{name: "small strip", pointCount: 8, wantVerts: 16, wantIndices: 42},
		{name: "default density", pointCount: 512, wantVerts: 1024, wantIndices: 3060},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMesh(tt.pointCount)
			require.NoError(t, err)

			assert.Equal(t, tt.pointCount, m.PointCount())
			assert.Equal(t, tt.wantVerts, m.VertexCount())
			assert.Equal(t, tt.wantIndices, m.IndexCount())
			assert.Len(t, m.Vertices(), tt.wantVerts)
			assert.Len(t, m.Indices(), tt.wantIndices)
		})
	}
}

func TestNewMeshRejectsOutOfRange(t *testing.T) {
	_, err := NewMesh(1)
	assert.ErrorIs(t, err, ErrPointCount)

	_, err = NewMesh(MaxPointCount + 1)
	assert.ErrorIs(t, err, ErrIndexOverflow)

	_, err = NewMesh(MaxPointCount)
	assert.NoError(t, err)
}

func TestMeshColumnsSpanClipSpace(t *testing.T) {
	m, err := NewMesh(512)
	require.NoError(t, err)
	verts := m.Vertices()

	assert.Equal(t, float32(-1), verts[0].X)
	assert.Equal(t, float32(1), verts[len(verts)-1].X)

	for i := 0; i < len(verts); i += 2 {
		top, bottom := verts[i], verts[i+1]
		assert.Equal(t, top.X, bottom.X, "column %d", i/2)
		assert.Equal(t, float32(1), top.Y)
		assert.Equal(t, float32(-1), bottom.Y)
		if i > 0 {
			assert.Greater(t, top.X, verts[i-2].X, "column %d must be right of its predecessor", i/2)
		}
	}
}

func TestMeshQuadIndices(t *testing.T) {
	m, err := NewMesh(3)
	require.NoError(t, err)

	assert.Equal(t, []uint16{0, 2, 1, 2, 3, 1, 2, 4, 3, 4, 5, 3}, m.Indices())
}

func TestMeshTrianglesWindClockwise(t *testing.T) {
	m, err := NewMesh(64)
	require.NoError(t, err)
	verts := m.Vertices()
	indices := m.Indices()

	for tri := 0; tri < len(indices); tri += 3 {
		p0, p1, p2 := verts[indices[tri]], verts[indices[tri+1]], verts[indices[tri+2]]
		area := (p1.X-p0.X)*(p2.Y-p0.Y) - (p1.Y-p0.Y)*(p2.X-p0.X)
		assert.Less(t, area, float32(0), "triangle %d should be clockwise", tri/3)
	}
}

func TestMeshEncodings(t *testing.T) {
	m, err := NewMesh(4)
	require.NoError(t, err)

	vb := m.VertexBytes()
	assert.Len(t, vb, m.VertexCount()*int(m.VertexStride()))
	assert.Equal(t, m.Vertices(), UnmarshalProfileCoords(vb))

	ib := m.IndexBytes()
	require.Len(t, ib, 2*m.IndexCount())
	for i, idx := range m.Indices() {
		assert.Equal(t, idx, binary.LittleEndian.Uint16(ib[i*2:]))
	}
}

func TestMeshAccessorsReturnCopies(t *testing.T) {
	m, err := NewMesh(4)
	require.NoError(t, err)

	verts := m.Vertices()
	verts[0].X = 42
	indices := m.Indices()
	indices[0] = 99

	assert.Equal(t, float32(-1), m.Vertices()[0].X)
	assert.Equal(t, uint16(0), m.Indices()[0])
}
