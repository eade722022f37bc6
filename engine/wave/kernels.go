package wave

import (
	"math"

	"github.com/Carmen-Shannon/wave-profile/common"
	"github.com/Carmen-Shannon/wave-profile/engine/params"
	"github.com/Carmen-Shannon/wave-profile/engine/renderer/shader"
)

// Go renditions of the WGSL kernels in assets/, run by the software backend.

// ProfileKernel transforms base vertex GlobalID.x into the profile buffer.
// Bindings: 0 base (read), 1 profile (read_write), 2 WaveParams (uniform).
func ProfileKernel(inv shader.Invocation, res shader.Resources) {
	base := res.Binding(0, 0)
	profile := res.Binding(0, 1)
	wp := common.Float32sFromBytes(res.Binding(0, 2))

	off := int(inv.GlobalID[0]) * 8
	if off+8 > len(base) || off+8 > len(profile) || len(wp) < 3 {
		return
	}
	p := common.Float32sFromBytes(base[off : off+8])
	qBase, amplitude, height := wp[0], wp[1], wp[2]

	phase := float32(6.2831853) * p[0]
	y := float32(-1)
	if p[1] > 0 {
		y = height + amplitude*float32(math.Cos(float64(phase)))
	}
	x := p[0] - qBase*amplitude*float32(math.Sin(float64(phase)))

	common.PutFloat32s(profile[off:off+8], x, y)
}

// PassThroughVertex offsets the vertex position by the frame constants and forwards their colour.
func PassThroughVertex(vertex []byte, res shader.Resources) shader.VertexOutput {
	constants := params.UnmarshalFrameConstants(res.Binding(0, 0))
	position := common.Float32sFromBytes(vertex)

	return shader.VertexOutput{
		Position: [4]float32{
			position[0] + constants.Offset[0],
			position[1] + constants.Offset[1],
			constants.Offset[2],
			constants.Offset[3],
		},
		Colour: constants.Colour,
	}
}

// PassThroughFragment returns the colour of the frame constants.
func PassThroughFragment(_ shader.VertexOutput, res shader.Resources) [4]float32 {
	return params.UnmarshalFrameConstants(res.Binding(0, 0)).Colour
}
