package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// ErrCompile is returned when a shader's WGSL fails to compile.
var ErrCompile = errors.New("shader: compilation failed")

// Validate compiles the processed WGSL of s to SPIR-V and discards the result.
// It is the compile step of backends that do not hand WGSL to a driver.
//
// Parameters:
//   - s: the shader to validate
//
// Returns:
//   - error: nil when the source compiles, otherwise ErrCompile wrapping the compiler error
func Validate(s Shader) error {
	if _, err := naga.Compile(s.Source()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCompile, s.Key(), err)
	}
	return nil
}
