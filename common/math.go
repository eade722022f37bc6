package common

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// PutFloat32s writes the values into dst as consecutive little-endian float32 words.
// dst must be at least 4*len(values) bytes long.
//
// Parameters:
//   - dst: destination byte slice
//   - values: the floats to encode
func PutFloat32s(dst []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:i*4+4], math.Float32bits(v))
	}
}

// Float32sFromBytes decodes consecutive little-endian float32 words from src.
// Trailing bytes that do not form a full word are ignored.
//
// Parameters:
//   - src: the encoded bytes, typically a GPU readback
//
// Returns:
//   - []float32: the decoded values
func Float32sFromBytes(src []byte) []float32 {
	out := make([]float32, len(src)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4 : i*4+4]))
	}
	return out
}

// AlignUp rounds n up to the next multiple of alignment. An alignment of zero returns n unchanged.
//
// Parameters:
//   - n: the value to round
//   - alignment: the required multiple
//
// Returns:
//   - uint64: the aligned value
func AlignUp(n, alignment uint64) uint64 {
	if alignment == 0 {
		return n
	}
	return (n + alignment - 1) / alignment * alignment
}

// Coalesce returns the first non-zero value, or the zero value when every value is zero.
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
