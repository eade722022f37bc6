// annotations.go defines the annotation types, argument constants and parser for the
// WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed with
// @wave: that drive struct injection, bind group declaration and workgroup sizing.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@wave:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition
	// into the shader at the annotation site. Consumed entirely during pre-processing.
	//
	// Syntax: //@wave:include <struct_type>
	//
	// Example: //@wave:include wave_params
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// and appends an Annotation to the PreProcessor's declarations list.
	//
	// Syntax: //@wave:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@wave:group 0 2 storage_uniform params wave_params
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeWorkgroup emits the compute stage attribute with the workgroup size
	// configured on the PreProcessor. The kernel source never hard-codes its width.
	//
	// Syntax: //@wave:workgroup
	AnnotationTypeWorkgroup AnnotationType = "workgroup"
)

// Annotation represents a single parsed @wave: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:   [0] = struct type key (e.g. "profile_coord")
	//   - group:     [0] = address space, [1] = var name, [2] = WGSL type key
	//   - workgroup: empty
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source, used for error reporting.
	Line int

	// Group is the @group index for group annotations. Nil otherwise.
	Group *int

	// Binding is the @binding index for group annotations. Nil otherwise.
	Binding *int
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// Struct type arguments. Each maps to a Go GPU type with an embedded .wgsl asset file.
const (
	// AnnotationArgProfileCoord identifies the ProfileCoord vertex struct.
	// Source: engine/mesh/assets/profile_coord.wgsl
	AnnotationArgProfileCoord AnnotationArg = "profile_coord"

	// AnnotationArgWaveParams identifies the per-profile WaveParams uniform struct.
	// Source: engine/params/assets/wave_params.wgsl
	AnnotationArgWaveParams AnnotationArg = "wave_params"

	// AnnotationArgFrameConstants identifies the per-layer FrameConstants uniform struct.
	// Source: engine/params/assets/frame_constants.wgsl
	AnnotationArgFrameConstants AnnotationArg = "frame_constants"
)

// Address space arguments, mapped to WGSL var<> declarations.
const (
	annotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

var validStructTypes = []AnnotationArg{
	AnnotationArgProfileCoord,
	AnnotationArgWaveParams,
	AnnotationArgFrameConstants,
}

var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @wave: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @wave annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @wave include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @wave include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @wave group annotation requires exactly five arguments (group, binding, address space, var name, struct type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q in @wave group annotation: %w", lineNum, args[1], err)
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @wave group annotation: %w", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @wave group annotation", lineNum, args[3])
		}
		typeArg := args[5]
		if inner, ok := strings.CutPrefix(typeArg, "array<"); ok {
			inner = strings.TrimSuffix(inner, ">")
			if !slices.Contains(validStructTypes, AnnotationArg(inner)) {
				return nil, fmt.Errorf("line %d: unknown array element type %q in @wave group annotation", lineNum, inner)
			}
		} else if !slices.Contains(validStructTypes, AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @wave group annotation", lineNum, typeArg)
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(typeArg)},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	case string(AnnotationTypeWorkgroup):
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: @wave workgroup annotation takes no arguments", lineNum)
		}
		return &Annotation{
			Type: AnnotationTypeWorkgroup,
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @wave annotation type %q", lineNum, args[0])
	}
}
