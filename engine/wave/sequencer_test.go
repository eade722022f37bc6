package wave

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayerConstants(t *testing.T) {
	for _, count := range []int{1, 4, 7} {
		layers := LayerConstants(count, DefaultLayerFalloff)
		assert.Len(t, layers, count)

		for k, c := range layers {
			want := math.Pow(DefaultLayerFalloff, float64(k+1))
			assert.InDelta(t, want, c.Colour[0], 1e-6, "layer %d red", k+1)
			assert.InDelta(t, want, c.Colour[1], 1e-6, "layer %d green", k+1)
			assert.Equal(t, float32(1), c.Colour[2])
			assert.Equal(t, float32(1), c.Colour[3])
			assert.Equal(t, [4]float32{0, 0, 0, 1}, c.Offset)
		}
	}
}

func TestLayerConstantsNoLayers(t *testing.T) {
	assert.Empty(t, LayerConstants(0, DefaultLayerFalloff))
}
