package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutFloat32sRoundTrip(t *testing.T) {
	buf := make([]byte, 12)
	PutFloat32s(buf, 1.5, -0.25, 0)

	assert.Equal(t, []float32{1.5, -0.25, 0}, Float32sFromBytes(buf))
}

func TestFloat32sFromBytesIgnoresPartialWord(t *testing.T) {
	buf := make([]byte, 6)
	PutFloat32s(buf, 2)

	assert.Equal(t, []float32{2}, Float32sFromBytes(buf))
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		name      string
		n         uint64
		alignment uint64
		want      uint64
	}{
		{name: "already aligned", n: 256, alignment: 256, want: 256},
		{name: "rounds up", n: 16, alignment: 256, want: 256},
		{name: "zero value", n: 0, alignment: 256, want: 0},
		{name: "zero alignment", n: 17, alignment: 0, want: 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AlignUp(tt.n, tt.alignment))
		})
	}
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 3, Coalesce(0, 3, 4))
	assert.Equal(t, "", Coalesce("", ""))
}
