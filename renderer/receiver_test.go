package renderer

import (
	"context"
	"encoding/binary"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/volstream/pkg/keyvalue"
	"tarun-kavipurapu/volstream/pkg/monitor"
	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/transport"
	"tarun-kavipurapu/volstream/pkg/transport/tcp"
	"tarun-kavipurapu/volstream/pkg/volume"
)

func startReceiver(t *testing.T, opts Options) *Receiver {
	t.Helper()
	opts.Listen = "127.0.0.1:0"
	r := NewReceiver(opts)
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func dialReceiver(t *testing.T, r *Receiver) transport.Node {
	t.Helper()
	client := tcp.NewTCPTransport(":0", protocol.DefaultOptions())
	t.Cleanup(func() { _ = client.Close() })
	node, err := client.Dial(context.Background(), r.Transport.Addr())
	require.NoError(t, err)
	return node
}

func TestReceiverKeepsLatestPerChannel(t *testing.T) {
	fs := afero.NewMemMapFs()
	metrics := monitor.New()
	var seen atomic.Int32
	r := startReceiver(t, Options{
		Protocol: protocol.DefaultOptions(),
		Sink:     NewSink(fs, "/out", protocol.DefaultOptions()),
		Metrics:  metrics,
		OnVolume: func(string, *volume.Volume) { seen.Add(1) },
	})

	node := dialReceiver(t, r)
	for _, v := range []*volume.Volume{sampleVolume(t, 0, 1), sampleVolume(t, 1, 1), sampleVolume(t, 0, 2)} {
		require.NoError(t, node.SendVolume(v))
	}

	require.Eventually(t, func() bool { return seen.Load() == 3 }, 5*time.Second, 5*time.Millisecond)

	latest, ok := r.Latest(0)
	require.True(t, ok)
	assert.True(t, volume.Equal(sampleVolume(t, 0, 2), latest))
	_, ok = r.Latest(7)
	assert.False(t, ok)

	channels := r.Channels()
	require.Len(t, channels, 2)
	assert.EqualValues(t, 0, channels[0].ChannelID)
	assert.EqualValues(t, 2, channels[0].TimeIndex)
	assert.EqualValues(t, 1, channels[1].ChannelID)

	producers := r.GetProducers()
	require.Len(t, producers, 1)
	assert.EqualValues(t, 3, producers[0].Frames)
	assert.Equal(t, map[int32]int64{0: 2, 1: 1}, producers[0].Channels)

	frames, bytes, rejected := r.Stats()
	assert.EqualValues(t, 3, frames)
	assert.EqualValues(t, 3*64, bytes)
	assert.Zero(t, rejected)

	files, err := r.opts.Sink.List()
	require.NoError(t, err)
	assert.Len(t, files, 3)

	expected := `
# HELP volstream_frames_total Volume frames decoded successfully
# TYPE volstream_frames_total counter
volstream_frames_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "volstream_frames_total"))

	status := r.GetStatus()
	assert.Contains(t, status, "Connected Producers: 1")
	assert.Contains(t, status, "Channel 1")
}

func TestReceiverCountsRejectedFrames(t *testing.T) {
	var warned atomic.Int32
	opts := protocol.DefaultOptions()
	opts.OnWarning = func(*protocol.FieldError) { warned.Add(1) }
	metrics := monitor.New()
	r := startReceiver(t, Options{Protocol: opts, Metrics: metrics})

	conn, err := net.Dial("tcp", r.Transport.Addr())
	require.NoError(t, err)
	defer conn.Close()

	v := sampleVolume(t, 0, 5)
	header := protocol.HeaderMap(&v.Metadata)
	header.Set(protocol.KeyColor, "1 red 0")
	text, err := keyvalue.Encode(header)
	require.NoError(t, err)
	missing := protocol.HeaderMap(&v.Metadata)
	missing.Delete(protocol.KeyDepth)
	bad, err := keyvalue.Encode(missing)
	require.NoError(t, err)

	for _, h := range []string{text, bad} {
		_, err = conn.Write(frame(h, v.Bytes()))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		frames, _, rejected := r.Stats()
		return frames == 1 && rejected == 1
	}, 5*time.Second, 5*time.Millisecond)

	latest, ok := r.Latest(0)
	require.True(t, ok)
	assert.Nil(t, latest.Color, "bad float array is dropped, not fatal")
	assert.EqualValues(t, 1, warned.Load())
}

func TestReceiverDropsIdleProducers(t *testing.T) {
	r := startReceiver(t, Options{Protocol: protocol.DefaultOptions(), IdleTimeout: 50 * time.Millisecond})

	conn, err := net.Dial("tcp", r.Transport.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(r.GetProducers()) == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(r.GetProducers()) == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestReceiverStopIsIdempotent(t *testing.T) {
	r := NewReceiver(Options{Listen: "127.0.0.1:0"})
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())

	select {
	case <-r.Done():
	default:
		t.Fatal("receive loop still running")
	}
}

func frame(header string, data []byte) []byte {
	order := binary.NativeEndian
	var b []byte
	b = order.AppendUint64(b, uint64(16+len(header)+len(data)))
	b = order.AppendUint64(b, uint64(len(header)))
	b = append(b, header...)
	b = order.AppendUint64(b, uint64(len(data)))
	return append(b, data...)
}
