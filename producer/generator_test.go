package producer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/volstream/pkg/volume"
)

func TestGeneratorIndicesAndMetadata(t *testing.T) {
	g := &Generator{Type: volume.Float, Width: 3, Height: 2, Depth: 1, ChannelID: 4, ChannelName: "c4", Color: []float32{0, 1, 0, 1}}
	for i := int64(0); i < 3; i++ {
		v, err := g.Next()
		require.NoError(t, err)
		assert.Equal(t, i, v.TimeIndex)
		assert.EqualValues(t, 4, v.ChannelID)
		assert.EqualValues(t, 4, v.BytesPerVoxel)
		assert.Equal(t, 3*2*1*4, v.DataSizeInBytes())
		assert.Equal(t, []float32{0, 1, 0, 1}, v.Color)
	}
	assert.EqualValues(t, 3, g.Index())

	v, err := g.Next()
	require.NoError(t, err)
	v.Color[0] = 9
	assert.Equal(t, float32(0), g.Color[0], "color is copied per volume")
}

func TestGeneratorConstantPattern(t *testing.T) {
	g := &Generator{Type: volume.UnsignedByte, Width: 4, Height: 1, Depth: 1}
	_, err := g.Next()
	require.NoError(t, err)
	v, err := g.Next()
	require.NoError(t, err)

	// 1/16 of full scale, truncated
	want := byte(15)
	assert.Equal(t, []byte{want, want, want, want}, v.Bytes())
}

func TestGeneratorGradientShifts(t *testing.T) {
	g := &Generator{Type: volume.UnsignedShort, Width: 4, Height: 1, Depth: 1, Pattern: PatternGradient, ByteOrder: binary.BigEndian}
	first, err := g.Next()
	require.NoError(t, err)
	second, err := g.Next()
	require.NoError(t, err)

	sample := func(v *volume.Volume, x int) uint16 {
		return binary.BigEndian.Uint16(v.Bytes()[x*2:])
	}
	assert.Zero(t, sample(first, 0))
	assert.Equal(t, sample(first, 1), sample(second, 0))
	assert.Equal(t, sample(first, 3), sample(second, 2))
}

func TestGeneratorInvalid(t *testing.T) {
	_, err := (&Generator{Type: "Complex", Width: 1, Height: 1, Depth: 1}).Next()
	assert.Error(t, err)
	_, err = (&Generator{Type: volume.Byte}).Next()
	assert.Error(t, err)
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("Gradient")
	require.NoError(t, err)
	assert.Equal(t, PatternGradient, p)
	assert.Equal(t, "gradient", p.String())

	_, err = ParsePattern("noise")
	assert.Error(t, err)
}
