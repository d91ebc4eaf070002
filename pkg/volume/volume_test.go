package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCopyFromReusesOnlyExactCapacity(t *testing.T) {
	b := NewBuffer(8)
	first := &b.Bytes()[0]

	require.NoError(t, b.CopyFrom([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Same(t, first, &b.Bytes()[0], "same-size payload must reuse the backing array")

	require.NoError(t, b.CopyFrom([]byte{9, 9, 9, 9}))
	assert.Equal(t, 4, b.SizeInBytes())
	assert.Equal(t, 4, b.Cap(), "smaller payload reallocates to exact size")
	assert.Equal(t, []byte{9, 9, 9, 9}, b.Bytes())
}

func TestBufferCopyToRejectsShortDestination(t *testing.T) {
	b := &Buffer{data: []byte{1, 2, 3}}
	_, err := b.CopyTo(make([]byte, 2))
	assert.Error(t, err)

	dst := make([]byte, 3)
	n, err := b.CopyTo(dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, dst)
}

func TestEqualDistinguishesAbsentFromEmptyArrays(t *testing.T) {
	a := NewWithData(Metadata{ChannelName: "ch0"}, []byte{1})
	b := NewWithData(Metadata{ChannelName: "ch0", Color: []float32{}}, []byte{1})
	assert.False(t, Equal(a, b))

	b.Color = nil
	assert.True(t, Equal(a, b))

	b.Data = &Buffer{data: []byte{2}}
	assert.False(t, Equal(a, b))
}

func TestAllocate(t *testing.T) {
	v, err := Allocate(UnsignedShort, 4, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 4*3*2*2, v.DataSizeInBytes())
	assert.EqualValues(t, 2, v.BytesPerVoxel)
	assert.EqualValues(t, 3, v.Dimension)
	assert.EqualValues(t, 24, v.VoxelCount())

	_, err = Allocate("Complex", 1, 1, 1)
	assert.Error(t, err)
	_, err = Allocate(Float, 0, 1, 1)
	assert.Error(t, err)
}

func TestParseElementType(t *testing.T) {
	for _, et := range ElementTypes() {
		got, err := ParseElementType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}
	_, err := ParseElementType("unsignedbyte")
	assert.Error(t, err)
}
