package producer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/volume"
	"tarun-kavipurapu/volstream/renderer"
)

func startRenderer(t *testing.T) *renderer.Receiver {
	t.Helper()
	r := renderer.NewReceiver(renderer.Options{Listen: "127.0.0.1:0"})
	require.NoError(t, r.Start())
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func testGenerator() *Generator {
	return &Generator{
		Type:        volume.UnsignedByte,
		Width:       8,
		Height:      8,
		Depth:       4,
		ChannelID:   1,
		ChannelName: "synthetic",
		Pattern:     PatternGradient,
		Interval:    100 * time.Millisecond,
	}
}

func TestStreamDeliversFrames(t *testing.T) {
	r := startRenderer(t)
	p := NewProducer(Options{Renderer: r.Transport.Addr(), Protocol: protocol.DefaultOptions(), DialTimeout: 5 * time.Second})
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	assert.True(t, p.Connected())

	tracker := NewStreamTracker("synthetic", 5)
	require.NoError(t, p.Stream(ctx, testGenerator(), 5, 0, tracker))
	assert.True(t, tracker.IsComplete())
	assert.EqualValues(t, 5*256, tracker.GetBytesSent())

	require.Eventually(t, func() bool {
		frames, _, _ := r.Stats()
		return frames == 5
	}, 5*time.Second, 5*time.Millisecond)

	latest, ok := r.Latest(1)
	require.True(t, ok)
	assert.EqualValues(t, 4, latest.TimeIndex)
	assert.InDelta(t, 0.4, latest.TimeSeconds, 1e-9)
	assert.Equal(t, "synthetic", latest.ChannelName)
}

func TestStreamIsPaced(t *testing.T) {
	r := startRenderer(t)
	p := NewProducer(Options{Renderer: r.Transport.Addr(), Protocol: protocol.DefaultOptions()})
	defer p.Close()
	require.NoError(t, p.Connect(context.Background()))

	start := time.Now()
	require.NoError(t, p.Stream(context.Background(), testGenerator(), 4, 50, NewStreamTracker("paced", 4)))
	// burst of one: the first frame is immediate, the other three wait 20ms each
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestUnboundedStreamStopsOnCancel(t *testing.T) {
	r := startRenderer(t)
	p := NewProducer(Options{Renderer: r.Transport.Addr(), Protocol: protocol.DefaultOptions()})
	defer p.Close()
	require.NoError(t, p.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	tracker := NewStreamTracker("forever", 0)
	require.NoError(t, p.Stream(ctx, testGenerator(), 0, 100, tracker))

	sent, _, _, _, _ := tracker.GetProgress()
	assert.Positive(t, sent)
}

func TestConnectRetriesUntilRendererIsUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r := renderer.NewReceiver(renderer.Options{Listen: addr})
	go func() {
		time.Sleep(300 * time.Millisecond)
		assert.NoError(t, r.Start())
	}()
	defer r.Stop()

	p := NewProducer(Options{Renderer: addr, Protocol: protocol.DefaultOptions(), DialTimeout: 10 * time.Second})
	defer p.Close()
	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.Connected())
}

func TestConnectGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewProducer(Options{Renderer: addr, Protocol: protocol.DefaultOptions(), DialTimeout: 200 * time.Millisecond})
	defer p.Close()
	assert.Error(t, p.Connect(context.Background()))
	assert.False(t, p.Connected())
}

func TestSendWithoutConnection(t *testing.T) {
	p := NewProducer(Options{Protocol: protocol.DefaultOptions()})
	defer p.Close()

	v, err := testGenerator().Next()
	require.NoError(t, err)
	assert.ErrorIs(t, p.Send(v), ErrNotConnected)

	tracker := NewStreamTracker("offline", 3)
	assert.ErrorIs(t, p.Stream(context.Background(), testGenerator(), 3, 0, tracker), ErrNotConnected)
	_, _, _, _, failed := tracker.GetProgress()
	assert.EqualValues(t, 1, failed)
	assert.Equal(t, FrameFailed, tracker.FrameStatus(0))
}
