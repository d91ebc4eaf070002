package volume

import (
	"bytes"
	"fmt"
	"slices"
)

// Metadata describes one volumetric sample: timing, channel, appearance and geometry.
type Metadata struct {
	TimeIndex   int64
	TimeSeconds float64
	ChannelID   int32
	ChannelName string

	// Color and ViewMatrix are nil when absent. An empty slice is never produced by decoding.
	Color      []float32
	ViewMatrix []float32

	Dimension     int32
	Type          string
	BytesPerVoxel int64
	ElementSize   int64

	Width  int64
	Height int64
	Depth  int64

	VoxelWidth  float64
	VoxelHeight float64
	VoxelDepth  float64
	RealUnit    string
}

// VoxelCount returns width*height*depth.
func (m *Metadata) VoxelCount() int64 {
	return m.Width * m.Height * m.Depth
}

// VoxelBuffer owns the sample data of a volume and knows how to copy itself
// to and from a contiguous byte region.
type VoxelBuffer interface {
	SizeInBytes() int
	CopyTo(dst []byte) (int, error)
	CopyFrom(src []byte) error
}

// Volume is a metadata block plus its voxel payload.
type Volume struct {
	Metadata
	Data VoxelBuffer
}

func New() *Volume {
	return &Volume{Data: &Buffer{}}
}

// NewWithData wraps data without copying it.
func NewWithData(meta Metadata, data []byte) *Volume {
	return &Volume{Metadata: meta, Data: &Buffer{data: data}}
}

// DataSizeInBytes returns 0 for a volume without a buffer.
func (v *Volume) DataSizeInBytes() int {
	if v.Data == nil {
		return 0
	}
	return v.Data.SizeInBytes()
}

// Bytes returns the payload when Data is a *Buffer, or a copy otherwise.
func (v *Volume) Bytes() []byte {
	switch d := v.Data.(type) {
	case nil:
		return nil
	case *Buffer:
		return d.Bytes()
	default:
		out := make([]byte, d.SizeInBytes())
		n, _ := d.CopyTo(out)
		return out[:n]
	}
}

// Buffer is a VoxelBuffer backed by a byte slice.
type Buffer struct {
	data []byte
}

func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

func (b *Buffer) SizeInBytes() int {
	return len(b.data)
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Cap() int {
	return cap(b.data)
}

func (b *Buffer) CopyTo(dst []byte) (int, error) {
	if len(dst) < len(b.data) {
		return 0, fmt.Errorf("volume: destination too small: have %d need %d", len(dst), len(b.data))
	}
	return copy(dst, b.data), nil
}

// CopyFrom replaces the contents with src. The backing array is kept only when
// its capacity equals len(src) exactly.
func (b *Buffer) CopyFrom(src []byte) error {
	if b.data == nil || cap(b.data) != len(src) {
		b.data = make([]byte, len(src))
	}
	b.data = b.data[:len(src)]
	copy(b.data, src)
	return nil
}

// Equal reports whether two volumes carry the same metadata and payload bytes.
func Equal(a, b *Volume) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !metadataEqual(&a.Metadata, &b.Metadata) {
		return false
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

func metadataEqual(a, b *Metadata) bool {
	return a.TimeIndex == b.TimeIndex &&
		a.TimeSeconds == b.TimeSeconds &&
		a.ChannelID == b.ChannelID &&
		a.ChannelName == b.ChannelName &&
		floatsEqual(a.Color, b.Color) &&
		floatsEqual(a.ViewMatrix, b.ViewMatrix) &&
		a.Dimension == b.Dimension &&
		a.Type == b.Type &&
		a.BytesPerVoxel == b.BytesPerVoxel &&
		a.ElementSize == b.ElementSize &&
		a.Width == b.Width &&
		a.Height == b.Height &&
		a.Depth == b.Depth &&
		a.VoxelWidth == b.VoxelWidth &&
		a.VoxelHeight == b.VoxelHeight &&
		a.VoxelDepth == b.VoxelDepth &&
		a.RealUnit == b.RealUnit
}

// nil and empty are different: nil is "absent".
func floatsEqual(a, b []float32) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return slices.Equal(a, b)
}
