package protocol

import (
	"bytes"
	"encoding/binary"
	"io"

	"tarun-kavipurapu/volstream/pkg/volume"
)

func scenarioVolume() *volume.Volume {
	return volume.NewWithData(volume.Metadata{
		TimeIndex:     3,
		TimeSeconds:   1.5,
		ChannelID:     0,
		ChannelName:   "ch0",
		Dimension:     3,
		Type:          "UnsignedByte",
		BytesPerVoxel: 1,
		ElementSize:   1,
		Width:         4,
		Height:        4,
		Depth:         4,
		VoxelWidth:    1.0,
		VoxelHeight:   1.0,
		VoxelDepth:    1.0,
		RealUnit:      "um",
	}, bytes.Repeat([]byte{0x2A}, 64))
}

func fullVolume(size int) *volume.Volume {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	return volume.NewWithData(volume.Metadata{
		TimeIndex:     1234567890123,
		TimeSeconds:   0.1 + 0.2,
		ChannelID:     -2,
		ChannelName:   "GFP = green",
		Color:         []float32{1, 0.5, 0.25, 1},
		ViewMatrix:    []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0.5, -1.25, 3e-7, 1},
		Dimension:     3,
		Type:          "UnsignedShort",
		BytesPerVoxel: 2,
		ElementSize:   2,
		Width:         int64(size / 2),
		Height:        1,
		Depth:         1,
		VoxelWidth:    0.1625,
		VoxelHeight:   0.1625,
		VoxelDepth:    2.5,
		RealUnit:      "micrometer",
	}, payload)
}

// rawFrame assembles a frame by hand so tests can put arbitrary values in the length fields.
func rawFrame(order binary.ByteOrder, total, headerLen uint64, header string, dataLen uint64, data []byte) []byte {
	var buf bytes.Buffer
	var field [8]byte
	order.PutUint64(field[:], total)
	buf.Write(field[:])
	order.PutUint64(field[:], headerLen)
	buf.Write(field[:])
	buf.WriteString(header)
	order.PutUint64(field[:], dataLen)
	buf.Write(field[:])
	buf.Write(data)
	return buf.Bytes()
}

func mustHeader(m *volume.Metadata) string {
	h, err := EncodeHeader(m)
	if err != nil {
		panic(err)
	}
	return h
}

// trickleReader hands out at most chunk bytes per call and, when stall is set,
// returns (0, nil) on every other call like a non-blocking channel.
type trickleReader struct {
	data   []byte
	chunk  int
	stall  bool
	toggle bool
	calls  int
}

func (t *trickleReader) Read(p []byte) (int, error) {
	t.calls++
	if t.stall {
		t.toggle = !t.toggle
		if t.toggle {
			return 0, nil
		}
	}
	if len(t.data) == 0 {
		return 0, io.EOF
	}
	n := min(t.chunk, len(p), len(t.data))
	copy(p, t.data[:n])
	t.data = t.data[n:]
	return n, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// interruptingReader fails every other call with a timeout.
type interruptingReader struct {
	r      io.Reader
	toggle bool
	fails  int
}

func (i *interruptingReader) Read(p []byte) (int, error) {
	i.toggle = !i.toggle
	if i.toggle {
		i.fails++
		return 0, timeoutError{}
	}
	return i.r.Read(p)
}

// idleReader never produces data.
type idleReader struct{}

func (idleReader) Read([]byte) (int, error) { return 0, nil }
