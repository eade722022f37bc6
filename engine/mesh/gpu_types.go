package mesh

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUProfileCoordSource is the canonical WGSL definition of the ProfileCoord struct.
// Matches ProfileCoord layout exactly (8 bytes, std430 aligned).
//
//go:embed assets/profile_coord.wgsl
var GPUProfileCoordSource string

// ProfileCoord is a single 2D vertex of the base mesh or of a transformed profile.
// Matches the WGSL ProfileCoord struct layout exactly (see GPUProfileCoordSource).
// Size: 8 bytes.
type ProfileCoord struct {
	X float32 // offset 0
	Y float32 // offset 4
}

// Size returns the size of the ProfileCoord struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (p *ProfileCoord) Size() int {
	return int(unsafe.Sizeof(*p))
}

// Marshal serializes the ProfileCoord struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 8-byte buffer ready for GPU upload.
func (p *ProfileCoord) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.X))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.Y))
	return buf
}

// UnmarshalProfileCoords decodes a packed buffer of ProfileCoord values, such as a
// readback of a profile buffer. Trailing bytes that do not form a full coordinate are ignored.
//
// Parameters:
//   - data: the packed little-endian coordinate bytes
//
// Returns:
//   - []ProfileCoord: the decoded coordinates
func UnmarshalProfileCoords(data []byte) []ProfileCoord {
	out := make([]ProfileCoord, len(data)/8)
	for i := range out {
		off := i * 8
		out[i] = ProfileCoord{
			X: math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(data[off+4 : off+8])),
		}
	}
	return out
}
