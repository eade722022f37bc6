package params

// StoreBuilderOption is a functional option applied to a store during construction via NewStore.
type StoreBuilderOption func(*store)

// WithAmplitude overrides the amplitude shared by every profile (default 0.2).
//
// Parameters:
//   - amplitude: the wave amplitude in clip units
//
// Returns:
//   - StoreBuilderOption: a function that applies the amplitude option to a store
func WithAmplitude(amplitude float32) StoreBuilderOption {
	return func(s *store) {
		s.amplitude = amplitude
	}
}

// WithHeight overrides the linear height mapping height = base + scale*Qbase
// (default -0.5 + 1.6*Qbase).
//
// Parameters:
//   - base: the height at Qbase = 0
//   - scale: the height gained per unit of Qbase
//
// Returns:
//   - StoreBuilderOption: a function that applies the height option to a store
func WithHeight(base, scale float32) StoreBuilderOption {
	return func(s *store) {
		s.heightBase = base
		s.heightScale = scale
	}
}

// WithRequiredAlignment overrides the binding alignment the packed stride is checked against.
// When not specified, RequiredStride (256) is used.
//
// Parameters:
//   - alignment: the required bytes per entry
//
// Returns:
//   - StoreBuilderOption: a function that applies the alignment option to a store
func WithRequiredAlignment(alignment int) StoreBuilderOption {
	return func(s *store) {
		s.requiredAlignment = alignment
	}
}
