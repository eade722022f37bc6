// pre_processor.go implements the WGSL shader pre-processor. It scans shader source for
// @wave: annotations, replaces them with generated WGSL declarations or injected struct
// source, and collects the binding declarations for later inspection.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to embedded WGSL struct sources and their
//     resolved type names.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/wave-profile/engine/mesh"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
)

// ErrWorkgroupUnset is returned when a source uses //@wave:workgroup on a pre-processor
// that was built without a workgroup size.
var ErrWorkgroupUnset = errors.New("shader: workgroup annotation used without a configured workgroup size")

// registryEntry pairs a WGSL struct source string with the resolved WGSL type name.
type registryEntry struct {
	// Source is the raw WGSL struct definition text injected by @wave:include.
	Source string

	// Type is the WGSL type name emitted in @wave:group declarations.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string
	workgroupSize        [3]uint32

	// declarations is reset at the start of each Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @wave: annotations.
type PreProcessor interface {
	// Process replaces every @wave: annotation in source with its WGSL output.
	// @wave:include is replaced with the embedded struct source, @wave:group with a generated
	// @group/@binding declaration and @wave:workgroup with the compute stage attribute.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if any annotation is malformed or cannot be resolved
	Process(source string) (string, error)

	// Declarations returns the group annotations collected during the most recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation

	// WorkgroupSize returns the workgroup size emitted for @wave:workgroup.
	//
	// Returns:
	//   - [3]uint32: the configured size, all zero when unset
	WorkgroupSize() [3]uint32
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with the GPU struct types of the mesh and params
// packages registered.
//
// Parameters:
//   - options: functional options such as WithWorkgroupSize
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(options ...PreProcessorBuilderOption) PreProcessor {
	p := &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgProfileCoord:   {Source: mesh.GPUProfileCoordSource, Type: "ProfileCoord"},
			AnnotationArgWaveParams:     {Source: params.GPUWaveParamsSource, Type: "WaveParams"},
			AnnotationArgFrameConstants: {Source: params.GPUFrameConstantsSource, Type: "FrameConstants"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @wave:include argument %q", i+1, a.Args[0])
			}
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				inner = strings.TrimSuffix(inner, ">")
				wgslType = fmt.Sprintf("array<%s>", p.structRegistry[AnnotationArg(inner)].Type)
			} else {
				wgslType = p.structRegistry[a.Args[2]].Type
			}

			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeWorkgroup:
			if p.workgroupSize[0] == 0 {
				return "", fmt.Errorf("line %d: %w", i+1, ErrWorkgroupUnset)
			}
			ws := p.workgroupSize
			out = append(out, fmt.Sprintf("@compute @workgroup_size(%d, %d, %d)", ws[0], ws[1], ws[2]))
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

func (p *preProcessor) WorkgroupSize() [3]uint32 {
	return p.workgroupSize
}
