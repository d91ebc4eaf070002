package protocol

import (
	"math"
	"strconv"
	"strings"

	"tarun-kavipurapu/volstream/pkg/keyvalue"
	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/volume"
)

// Header keys, in wire order.
const (
	KeyIndex         = "index"
	KeyTime          = "time"
	KeyChannel       = "channel"
	KeyChannelName   = "channelname"
	KeyColor         = "color"
	KeyViewMatrix    = "viewmatrix"
	KeyDim           = "dim"
	KeyType          = "type"
	KeyBytesPerVoxel = "bytespervoxel"
	KeyElementSize   = "elementsize"
	KeyWidth         = "width"
	KeyHeight        = "height"
	KeyDepth         = "depth"
	KeyVoxelWidth    = "voxelwidth"
	KeyVoxelHeight   = "voxelheight"
	KeyVoxelDepth    = "voxeldepth"
	KeyRealUnit      = "realunit"
)

// HeaderKeys lists every header key in wire order.
var HeaderKeys = []string{
	KeyIndex, KeyTime, KeyChannel, KeyChannelName, KeyColor, KeyViewMatrix,
	KeyDim, KeyType, KeyBytesPerVoxel, KeyElementSize,
	KeyWidth, KeyHeight, KeyDepth,
	KeyVoxelWidth, KeyVoxelHeight, KeyVoxelDepth, KeyRealUnit,
}

// HeaderMap builds the ordered key/value form of m.
func HeaderMap(m *volume.Metadata) *keyvalue.Map {
	h := keyvalue.NewMap()
	h.Set(KeyIndex, strconv.FormatInt(m.TimeIndex, 10))
	h.Set(KeyTime, formatFloat(m.TimeSeconds))
	h.Set(KeyChannel, strconv.FormatInt(int64(m.ChannelID), 10))
	h.Set(KeyChannelName, m.ChannelName)
	h.Set(KeyColor, FormatFloatArray(m.Color))
	h.Set(KeyViewMatrix, FormatFloatArray(m.ViewMatrix))
	h.Set(KeyDim, strconv.FormatInt(int64(m.Dimension), 10))
	h.Set(KeyType, m.Type)
	h.Set(KeyBytesPerVoxel, strconv.FormatInt(m.BytesPerVoxel, 10))
	h.Set(KeyElementSize, strconv.FormatInt(m.ElementSize, 10))
	h.Set(KeyWidth, strconv.FormatInt(m.Width, 10))
	h.Set(KeyHeight, strconv.FormatInt(m.Height, 10))
	h.Set(KeyDepth, strconv.FormatInt(m.Depth, 10))
	h.Set(KeyVoxelWidth, formatFloat(m.VoxelWidth))
	h.Set(KeyVoxelHeight, formatFloat(m.VoxelHeight))
	h.Set(KeyVoxelDepth, formatFloat(m.VoxelDepth))
	h.Set(KeyRealUnit, m.RealUnit)
	return h
}

// EncodeHeader renders m as header text.
func EncodeHeader(m *volume.Metadata) (string, error) {
	return keyvalue.Encode(HeaderMap(m))
}

// DecodeHeader parses header text. A missing or unparsable scalar field is
// fatal and returns a *FieldError. A bad float array only yields an absent
// array; the problem is logged and passed to onWarning.
func DecodeHeader(text string, onWarning func(*FieldError)) (volume.Metadata, error) {
	fields := keyvalue.Decode(text)
	d := headerDecoder{fields: fields}

	var m volume.Metadata
	m.TimeIndex = d.integer(KeyIndex, 64)
	m.TimeSeconds = d.float(KeyTime)
	m.ChannelID = int32(d.integer(KeyChannel, 32))
	m.ChannelName = d.str(KeyChannelName)
	m.Color = d.floatArray(KeyColor, onWarning)
	m.ViewMatrix = d.floatArray(KeyViewMatrix, onWarning)
	m.Dimension = int32(d.integer(KeyDim, 32))
	m.Type = d.str(KeyType)
	m.BytesPerVoxel = d.integer(KeyBytesPerVoxel, 64)
	m.ElementSize = d.integer(KeyElementSize, 64)
	m.Width = d.integer(KeyWidth, 64)
	m.Height = d.integer(KeyHeight, 64)
	m.Depth = d.integer(KeyDepth, 64)
	m.RealUnit = d.str(KeyRealUnit)
	m.VoxelWidth = d.float(KeyVoxelWidth)
	m.VoxelHeight = d.float(KeyVoxelHeight)
	m.VoxelDepth = d.float(KeyVoxelDepth)

	if d.err != nil {
		return volume.Metadata{}, d.err
	}
	return m, nil
}

// headerDecoder keeps the first fatal error and ignores later fields.
type headerDecoder struct {
	fields map[string]string
	err    *FieldError
}

func (d *headerDecoder) lookup(key string) (string, bool) {
	if d.err != nil {
		return "", false
	}
	v, ok := d.fields[key]
	if !ok {
		d.err = &FieldError{Field: key, Err: ErrMissingField}
	}
	return v, ok
}

func (d *headerDecoder) str(key string) string {
	v, _ := d.lookup(key)
	return v
}

func (d *headerDecoder) integer(key string, bits int) int64 {
	v, ok := d.lookup(key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, bits)
	if err != nil {
		d.err = &FieldError{Field: key, Value: v, Err: ErrInvalidField, Cause: err}
		return 0
	}
	return n
}

func (d *headerDecoder) float(key string) float64 {
	v, ok := d.lookup(key)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		d.err = &FieldError{Field: key, Value: v, Err: ErrInvalidField, Cause: err}
		return 0
	}
	return f
}

func (d *headerDecoder) floatArray(key string, onWarning func(*FieldError)) []float32 {
	if d.err != nil {
		return nil
	}
	arr, ferr := ParseFloatArray(d.fields[key])
	if ferr != nil {
		ferr.Field = key
		logger.Sugar.Warnf("[Protocol] dropping header array: field=%s value=%q err=%v", key, ferr.Value, ferr.Cause)
		if onWarning != nil {
			onWarning(ferr)
		}
	}
	return arr
}

// FormatFloatArray joins values with single spaces. nil gives "".
func FormatFloatArray(values []float32) string {
	if values == nil {
		return ""
	}
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(formatFloatBits(float64(v), 32))
	}
	return sb.String()
}

// ParseFloatArray is the inverse of FormatFloatArray. "" is absent (nil, nil).
// Tokens are split on single spaces, so doubled spaces produce an empty token
// and fail. Any failure returns nil and a *FieldError without a Field set.
func ParseFloatArray(s string) ([]float32, *FieldError) {
	if s == "" {
		return nil, nil
	}
	tokens := strings.Split(strings.TrimSpace(s), " ")
	out := make([]float32, len(tokens))
	for i, tok := range tokens {
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, &FieldError{Value: s, Err: ErrInvalidField, Cause: err}
		}
		out[i] = float32(f)
	}
	return out, nil
}

func formatFloat(f float64) string {
	return formatFloatBits(f, 64)
}

// formatFloatBits spells infinities as "Infinity" and "-Infinity", which both
// strconv.ParseFloat and JVM peers accept.
func formatFloatBits(f float64, bitSize int) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}
