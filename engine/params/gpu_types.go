package params

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUWaveParamsSource is the canonical WGSL definition of the WaveParams struct.
// Matches WaveParams layout exactly (16 bytes).
//
//go:embed assets/wave_params.wgsl
var GPUWaveParamsSource string

// GPUFrameConstantsSource is the canonical WGSL definition of the FrameConstants struct.
// Matches FrameConstants layout exactly (32 bytes).
//
//go:embed assets/frame_constants.wgsl
var GPUFrameConstantsSource string

// WaveParams is the per-profile parameter set read by the profile kernel.
// Only the first three slots are meaningful, the fourth keeps the struct at 16 bytes.
type WaveParams struct {
	QBase     float32 // offset  0: fixed-base curvature preset
	Amplitude float32 // offset  4: wave amplitude in clip units
	Height    float32 // offset  8: vertical offset of the wave crest line
	_         float32 // offset 12: padding
}

// Size returns the size of the WaveParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (w *WaveParams) Size() int {
	return int(unsafe.Sizeof(*w))
}

// Marshal serializes the WaveParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload, padding zeroed.
func (w *WaveParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(w.QBase))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(w.Amplitude))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(w.Height))
	return buf
}

// FrameConstants is the per-layer uniform read by the vertex and fragment kernels.
// Colour modulates the layer, Offset is added to the clip-space position.
type FrameConstants struct {
	Colour [4]float32 // offset  0: RGBA multiplier
	Offset [4]float32 // offset 16: clip-space offset; z and w pass through
}

// NewFrameConstants returns the constants every render pass starts from:
// opaque white with a (0, 0, 0, 1) offset.
//
// Returns:
//   - FrameConstants: the reset value
func NewFrameConstants() FrameConstants {
	return FrameConstants{
		Colour: [4]float32{1, 1, 1, 1},
		Offset: [4]float32{0, 0, 0, 1},
	}
}

// Darken multiplies the red and green channels by falloff. Blue, alpha and the offset are untouched.
//
// Parameters:
//   - falloff: the per-layer multiplier
func (f *FrameConstants) Darken(falloff float32) {
	f.Colour[0] *= falloff
	f.Colour[1] *= falloff
}

// Size returns the size of the FrameConstants struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (f *FrameConstants) Size() int {
	return int(unsafe.Sizeof(*f))
}

// Marshal serializes the FrameConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (f *FrameConstants) Marshal() []byte {
	buf := make([]byte, 32)
	for i, v := range f.Colour {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	for i, v := range f.Offset {
		binary.LittleEndian.PutUint32(buf[16+i*4:16+i*4+4], math.Float32bits(v))
	}
	return buf
}

// UnmarshalFrameConstants decodes a 32-byte FrameConstants encoding.
//
// Parameters:
//   - data: at least 32 bytes as produced by Marshal
//
// Returns:
//   - FrameConstants: the decoded constants
func UnmarshalFrameConstants(data []byte) FrameConstants {
	var f FrameConstants
	for i := range f.Colour {
		f.Colour[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	for i := range f.Offset {
		f.Offset[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[16+i*4 : 16+i*4+4]))
	}
	return f
}
