package protocol

import (
	"fmt"
	"io"

	"tarun-kavipurapu/volstream/pkg/volume"
)

// Codec encodes and decodes whole frames held in memory.
type Codec struct {
	opts Options
}

func NewCodec(opts Options) *Codec {
	return &Codec{opts: opts.withDefaults()}
}

func (c *Codec) Options() Options {
	return c.opts
}

var defaultCodec = NewCodec(DefaultOptions())

// Serialize encodes v with the default options. See Codec.Marshal.
func Serialize(v *volume.Volume, buf []byte) ([]byte, error) {
	return defaultCodec.Marshal(v, buf)
}

// Deserialize decodes a frame with the default options. See Codec.Unmarshal.
func Deserialize(buf []byte, v *volume.Volume) (*volume.Volume, error) {
	return defaultCodec.Unmarshal(buf, v)
}

// Marshal writes v as one frame. buf is reused only when its capacity equals
// the frame size exactly; otherwise a new slice of that size is allocated.
func (c *Codec) Marshal(v *volume.Volume, buf []byte) ([]byte, error) {
	header, err := EncodeHeader(&v.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	headerLen := len(header)
	dataLen := v.DataSizeInBytes()

	if headerLen > c.opts.Limits.MaxHeaderBytes || dataLen > c.opts.Limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: header=%d data=%d", ErrFrameTooLarge, headerLen, dataLen)
	}
	size := FrameSize(headerLen, dataLen)
	if size > MaxLength {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrMalformedLength, size)
	}
	needed := int(size)

	if cap(buf) != needed {
		buf = make([]byte, needed)
	}
	buf = buf[:needed]

	order := c.opts.ByteOrder
	order.PutUint64(buf[0:], uint64(needed-lengthFieldSize))
	order.PutUint64(buf[lengthFieldSize:], uint64(headerLen))
	off := prefixSize + copy(buf[prefixSize:], header)
	order.PutUint64(buf[off:], uint64(dataLen))
	off += lengthFieldSize

	if dataLen > 0 {
		n, err := v.Data.CopyTo(buf[off:])
		if err != nil {
			return nil, fmt.Errorf("copy payload: %w", err)
		}
		if n != dataLen {
			return nil, fmt.Errorf("copy payload: wrote %d of %d bytes", n, dataLen)
		}
	}
	return buf, nil
}

// Unmarshal decodes the frame at the start of buf into v, allocating a volume
// when v is nil. On error v is left untouched.
func (c *Codec) Unmarshal(buf []byte, v *volume.Volume) (*volume.Volume, error) {
	if len(buf) < prefixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	total, err := c.length(buf[0:], "total_length")
	if err != nil {
		return nil, err
	}
	headerLen, err := c.length(buf[lengthFieldSize:], "header_length")
	if err != nil {
		return nil, err
	}
	if headerLen > c.opts.Limits.MaxHeaderBytes {
		return nil, fmt.Errorf("%w: header_length=%d", ErrFrameTooLarge, headerLen)
	}

	off := prefixSize
	if len(buf)-off < headerLen+lengthFieldSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, headerLen+lengthFieldSize, len(buf)-off)
	}
	meta, err := DecodeHeader(string(buf[off:off+headerLen]), c.opts.OnWarning)
	if err != nil {
		return nil, err
	}
	off += headerLen

	dataLen, err := c.length(buf[off:], "data_length")
	if err != nil {
		return nil, err
	}
	if dataLen > c.opts.Limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: data_length=%d", ErrFrameTooLarge, dataLen)
	}
	off += lengthFieldSize
	if len(buf)-off < dataLen {
		return nil, fmt.Errorf("%w: payload needs %d bytes, have %d", ErrTruncated, dataLen, len(buf)-off)
	}
	if err := c.checkTotal(total, headerLen, dataLen); err != nil {
		return nil, err
	}

	return commit(v, meta, buf[off:off+dataLen])
}

// length decodes one length field, rejecting values outside the signed 32-bit range.
func (c *Codec) length(b []byte, field string) (int, error) {
	return decodeLength(c.opts, b, field)
}

func (c *Codec) checkTotal(total, headerLen, dataLen int) error {
	return checkTotal(c.opts, total, headerLen, dataLen)
}

func decodeLength(opts Options, b []byte, field string) (int, error) {
	n := opts.ByteOrder.Uint64(b[:lengthFieldSize])
	if n > MaxLength {
		return 0, fmt.Errorf("%w: %s=%d", ErrMalformedLength, field, n)
	}
	return int(n), nil
}

func checkTotal(opts Options, total, headerLen, dataLen int) error {
	if !opts.StrictTotalLength {
		return nil
	}
	want := int64(lengthFieldSize) + int64(headerLen) + int64(lengthFieldSize) + int64(dataLen)
	if int64(total) != want {
		return fmt.Errorf("%w: total_length=%d want %d", ErrLengthMismatch, total, want)
	}
	return nil
}

// commit publishes a fully decoded frame into v. The payload is copied before
// the metadata so a failing buffer leaves the metadata untouched.
func commit(v *volume.Volume, meta volume.Metadata, payload []byte) (*volume.Volume, error) {
	if v == nil {
		v = volume.New()
	}
	if v.Data == nil {
		v.Data = &volume.Buffer{}
	}
	if err := v.Data.CopyFrom(payload); err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	v.Metadata = meta
	return v, nil
}

// Writer writes frames to an io.Writer, reusing one frame buffer while
// consecutive volumes encode to the same size.
type Writer struct {
	w     io.Writer
	codec *Codec
	buf   []byte
}

func NewWriter(w io.Writer, opts Options) *Writer {
	return &Writer{w: w, codec: NewCodec(opts)}
}

// WriteVolume encodes v and writes the frame in a single Write call.
// It returns the number of bytes written.
func (w *Writer) WriteVolume(v *volume.Volume) (int, error) {
	buf, err := w.codec.Marshal(v, w.buf)
	if err != nil {
		return 0, err
	}
	w.buf = buf
	return w.w.Write(buf)
}

// BufferCap reports the capacity of the retained frame buffer.
func (w *Writer) BufferCap() int {
	return cap(w.buf)
}
