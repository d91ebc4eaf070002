// Package protocol implements the volume frame wire format.
//
// A frame is five fields written back to back:
//
//	total_length  u64   bytes that follow this field (16 + header_length + data_length)
//	header_length u64
//	header        header_length bytes of key=value text, one pair per line
//	data_length   u64
//	data          data_length bytes of raw voxel samples
//
// Length fields use the session byte order, which is not carried on the wire.
// Both peers must agree on it; the default is the host's native order.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// StandardTCPPort is the conventional renderer port.
const StandardTCPPort = 9140

const (
	lengthFieldSize = 8
	// prefixSize covers total_length and header_length.
	prefixSize = 2 * lengthFieldSize
	// frameOverhead is the three length fields.
	frameOverhead = 3 * lengthFieldSize

	// MaxLength is the largest length any field may carry.
	MaxLength = math.MaxInt32

	DefaultPollInterval = time.Millisecond
)

// Limits bounds the memory a single frame may claim.
type Limits struct {
	MaxHeaderBytes  int
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  MaxLength,
		MaxPayloadBytes: MaxLength,
	}
}

// Options configures a Codec or Reader. Zero values fall back to the defaults.
type Options struct {
	ByteOrder binary.ByteOrder
	Limits    Limits

	// StrictTotalLength rejects frames whose total_length is not
	// 16 + header_length + data_length. Off by default.
	StrictTotalLength bool

	// PollInterval is the pause between read attempts that returned no bytes.
	PollInterval time.Duration

	// ReadTimeout bounds a whole ReadVolume call. Zero means no bound.
	ReadTimeout time.Duration

	// OnWarning observes soft header failures. It may be nil.
	OnWarning func(*FieldError)
}

func DefaultOptions() Options {
	return Options{
		ByteOrder:    binary.NativeEndian,
		Limits:       DefaultLimits(),
		PollInterval: DefaultPollInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.ByteOrder == nil {
		o.ByteOrder = binary.NativeEndian
	}
	if o.Limits.MaxHeaderBytes <= 0 || o.Limits.MaxHeaderBytes > MaxLength {
		o.Limits.MaxHeaderBytes = MaxLength
	}
	if o.Limits.MaxPayloadBytes <= 0 || o.Limits.MaxPayloadBytes > MaxLength {
		o.Limits.MaxPayloadBytes = MaxLength
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// ParseByteOrder maps "native", "little" and "big" to a binary.ByteOrder.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native":
		return binary.NativeEndian, nil
	case "little", "le", "little-endian":
		return binary.LittleEndian, nil
	case "big", "be", "big-endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("protocol: unknown byte order %q", s)
	}
}

// FrameSize returns the encoded size of a frame with the given header and payload lengths.
func FrameSize(headerLen, dataLen int) int64 {
	return int64(frameOverhead) + int64(headerLen) + int64(dataLen)
}
