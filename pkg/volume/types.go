package volume

import "fmt"

// ElementType is the tag carried in the header "type" field.
type ElementType string

const (
	Byte          ElementType = "Byte"
	UnsignedByte  ElementType = "UnsignedByte"
	Short         ElementType = "Short"
	UnsignedShort ElementType = "UnsignedShort"
	Int           ElementType = "Int"
	UnsignedInt   ElementType = "UnsignedInt"
	Float         ElementType = "Float"
	Double        ElementType = "Double"
)

var elementSizes = map[ElementType]int64{
	Byte:          1,
	UnsignedByte:  1,
	Short:         2,
	UnsignedShort: 2,
	Int:           4,
	UnsignedInt:   4,
	Float:         4,
	Double:        8,
}

// Size returns the element size in bytes.
func (t ElementType) Size() (int64, error) {
	size, ok := elementSizes[t]
	if !ok {
		return 0, fmt.Errorf("volume: unknown element type %q", string(t))
	}
	return size, nil
}

// ParseElementType accepts only the known tags.
func ParseElementType(s string) (ElementType, error) {
	t := ElementType(s)
	if _, err := t.Size(); err != nil {
		return "", err
	}
	return t, nil
}

// ElementTypes lists the known tags in size order.
func ElementTypes() []ElementType {
	return []ElementType{Byte, UnsignedByte, Short, UnsignedShort, Int, UnsignedInt, Float, Double}
}

// Allocate builds a zeroed 3-D volume of the given element type and voxel counts.
func Allocate(t ElementType, width, height, depth int64) (*Volume, error) {
	size, err := t.Size()
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("volume: invalid dimensions %dx%dx%d", width, height, depth)
	}
	meta := Metadata{
		Dimension:     3,
		Type:          string(t),
		BytesPerVoxel: size,
		ElementSize:   size,
		Width:         width,
		Height:        height,
		Depth:         depth,
		VoxelWidth:    1,
		VoxelHeight:   1,
		VoxelDepth:    1,
		RealUnit:      "micrometer",
	}
	return NewWithData(meta, make([]byte, width*height*depth*size)), nil
}
