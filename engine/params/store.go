// Package params builds the per-profile wave parameters and packs them into a
// uniform buffer whose entries sit on a fixed binding-alignment stride.
package params

import (
	"errors"
	"fmt"
)

// RequiredStride is the byte distance between consecutive entries demanded by the
// uniform buffer offset alignment of the compute stage.
const RequiredStride = 256

var (
	// ErrNoProfiles is returned when the preset list is empty.
	ErrNoProfiles = errors.New("params: at least one Q value is required")

	// ErrStrideTooSmall is returned when the stride cannot hold a single WaveParams entry.
	ErrStrideTooSmall = errors.New("params: stride is smaller than one entry")

	// ErrStrideMismatch is returned when the packed buffer's per-entry stride differs
	// from the required alignment. This is a layout miscalculation, never a runtime condition.
	ErrStrideMismatch = errors.New("params: per-entry stride does not match required alignment")
)

// store is the implementation of the Store interface.
type store struct {
	entries []WaveParams
	stride  int
	buffer  []byte

	amplitude         float32
	heightBase        float32
	heightScale       float32
	requiredAlignment int
}

// Store holds the immutable per-profile parameters and their padded GPU encoding.
type Store interface {
	// Count returns the number of profiles.
	//
	// Returns:
	//   - int: one entry per Q preset
	Count() int

	// Stride returns the byte distance between consecutive entries in Bytes.
	//
	// Returns:
	//   - int: the stride in bytes
	Stride() int

	// Entry returns the parameters for profile i.
	//
	// Parameters:
	//   - i: the profile index in creation order
	//
	// Returns:
	//   - WaveParams: the parameters for that profile
	Entry(i int) WaveParams

	// Entries returns a copy of all parameters in creation order.
	//
	// Returns:
	//   - []WaveParams: the parameters
	Entries() []WaveParams

	// Offset returns the byte offset at which profile i is bound.
	//
	// Parameters:
	//   - i: the profile index
	//
	// Returns:
	//   - uint64: stride * i
	Offset(i int) uint64

	// EntrySize returns the meaningful byte size of one entry, i.e. the binding size.
	//
	// Returns:
	//   - uint64: the size of WaveParams
	EntrySize() uint64

	// Bytes returns a copy of the packed buffer, Count()*Stride() bytes long.
	//
	// Returns:
	//   - []byte: the encoded parameter buffer
	Bytes() []byte
}

var _ Store = &store{}

// NewStore computes one WaveParams per Q preset, with amplitude fixed and
// height = heightBase + heightScale*Qbase, then packs entry i at byte offset stride*i.
// The packed buffer is checked against the required alignment after packing.
//
// Parameters:
//   - qValues: the ordered curvature presets
//   - stride: the byte distance between entries
//   - options: functional options overriding the wave shape or the alignment
//
// Returns:
//   - Store: the built store
//   - error: ErrNoProfiles, ErrStrideTooSmall or ErrStrideMismatch on a layout violation
func NewStore(qValues []float32, stride int, options ...StoreBuilderOption) (Store, error) {
	s := &store{
		stride:            stride,
		amplitude:         0.2,
		heightBase:        -0.5,
		heightScale:       1.6,
		requiredAlignment: RequiredStride,
	}
	for _, opt := range options {
		opt(s)
	}

	if len(qValues) == 0 {
		return nil, ErrNoProfiles
	}
	var probe WaveParams
	if stride < probe.Size() {
		return nil, fmt.Errorf("%w: stride %d, entry %d bytes", ErrStrideTooSmall, stride, probe.Size())
	}

	s.entries = make([]WaveParams, len(qValues))
	s.buffer = make([]byte, stride*len(qValues))
	for i, q := range qValues {
		s.entries[i] = WaveParams{
			QBase:     q,
			Amplitude: s.amplitude,
			Height:    s.heightBase + s.heightScale*q,
		}
		copy(s.buffer[i*stride:], s.entries[i].Marshal())
	}

	if got := len(s.buffer) / len(s.entries); got != s.requiredAlignment {
		return nil, fmt.Errorf("%w: %d bytes per entry, want %d", ErrStrideMismatch, got, s.requiredAlignment)
	}

	return s, nil
}

func (s *store) Count() int {
	return len(s.entries)
}

func (s *store) Stride() int {
	return s.stride
}

func (s *store) Entry(i int) WaveParams {
	return s.entries[i]
}

func (s *store) Entries() []WaveParams {
	out := make([]WaveParams, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *store) Offset(i int) uint64 {
	return uint64(s.stride * i)
}

func (s *store) EntrySize() uint64 {
	var w WaveParams
	return uint64(w.Size())
}

func (s *store) Bytes() []byte {
	out := make([]byte, len(s.buffer))
	copy(out, s.buffer)
	return out
}
