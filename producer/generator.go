package producer

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"tarun-kavipurapu/volstream/pkg/volume"
)

// Pattern selects how synthetic voxels are filled.
type Pattern int

const (
	// PatternConstant fills every voxel with the same value, which changes per frame.
	PatternConstant Pattern = iota
	// PatternGradient ramps along x and moves one voxel per frame.
	PatternGradient
)

func (p Pattern) String() string {
	switch p {
	case PatternConstant:
		return "constant"
	case PatternGradient:
		return "gradient"
	default:
		return "unknown"
	}
}

func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(s) {
	case "constant", "":
		return PatternConstant, nil
	case "gradient":
		return PatternGradient, nil
	default:
		return 0, fmt.Errorf("unknown pattern %q", s)
	}
}

// Generator produces a time series of synthetic volumes on one channel.
type Generator struct {
	Type        volume.ElementType
	Width       int64
	Height      int64
	Depth       int64
	ChannelID   int32
	ChannelName string
	Color       []float32
	Pattern     Pattern
	// Interval is the simulated time between frames.
	Interval time.Duration
	// ByteOrder of multi-byte samples. Defaults to native.
	ByteOrder binary.ByteOrder

	next int64
}

// Next returns a freshly allocated volume with the next time index.
func (g *Generator) Next() (*volume.Volume, error) {
	v, err := volume.Allocate(g.Type, g.Width, g.Height, g.Depth)
	if err != nil {
		return nil, err
	}
	index := g.next
	g.next++

	v.TimeIndex = index
	v.TimeSeconds = float64(index) * g.Interval.Seconds()
	v.ChannelID = g.ChannelID
	v.ChannelName = g.ChannelName
	if g.Color != nil {
		v.Color = append([]float32(nil), g.Color...)
	}

	g.fill(v, index)
	return v, nil
}

// Index is the time index the next call to Next will use.
func (g *Generator) Index() int64 {
	return g.next
}

func (g *Generator) fill(v *volume.Volume, index int64) {
	order := g.ByteOrder
	if order == nil {
		order = binary.NativeEndian
	}
	size := int(v.ElementSize)
	data := v.Bytes()
	for i := 0; i*size < len(data); i++ {
		var sample float64
		switch g.Pattern {
		case PatternGradient:
			x := (int64(i) + index) % g.Width
			sample = float64(x) / float64(g.Width)
		default:
			sample = float64(index%16) / 16
		}
		putSample(order, g.Type, data[i*size:(i+1)*size], sample)
	}
}

// putSample stores a [0,1) sample scaled to the element type.
func putSample(order binary.ByteOrder, t volume.ElementType, dst []byte, s float64) {
	switch t {
	case volume.Byte:
		dst[0] = byte(int8(s * math.MaxInt8))
	case volume.UnsignedByte:
		dst[0] = byte(s * math.MaxUint8)
	case volume.Short:
		order.PutUint16(dst, uint16(int16(s*math.MaxInt16)))
	case volume.UnsignedShort:
		order.PutUint16(dst, uint16(s*math.MaxUint16))
	case volume.Int:
		order.PutUint32(dst, uint32(int32(s*math.MaxInt32)))
	case volume.UnsignedInt:
		order.PutUint32(dst, uint32(s*math.MaxUint32))
	case volume.Float:
		order.PutUint32(dst, math.Float32bits(float32(s)))
	case volume.Double:
		order.PutUint64(dst, math.Float64bits(s))
	}
}
