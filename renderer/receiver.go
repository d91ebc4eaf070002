package renderer

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"tarun-kavipurapu/volstream/pkg"
	"tarun-kavipurapu/volstream/pkg/discovery"
	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/monitor"
	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/transport"
	"tarun-kavipurapu/volstream/pkg/transport/tcp"
	"tarun-kavipurapu/volstream/pkg/volume"
)

const Version = "1.0.0"

type Options struct {
	Listen   string
	Protocol protocol.Options
	// Sink is optional; when set every accepted volume is persisted.
	Sink    *Sink
	Metrics *monitor.Metrics

	Advertise bool
	Instance  string

	// IdleTimeout drops producers that sent nothing for this long. Zero keeps them forever.
	IdleTimeout time.Duration

	// OnVolume is called from the receive loop for every accepted volume.
	OnVolume func(from string, v *volume.Volume)
}

// Receiver is the rendering side: it accepts producer connections and keeps
// the newest volume of every channel.
type Receiver struct {
	mu        sync.Mutex
	producers map[string]*pkg.ProducerMetadata // remote addr -> producer
	nodes     map[string]transport.Node
	latest    map[int32]*volume.Volume
	channels  map[int32]*pkg.ChannelMetadata
	frames    uint64
	bytes     uint64
	rejected  uint64

	Transport  transport.Transport
	opts       Options
	advertiser *discovery.Advertiser
	quitCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	started    time.Time
}

func NewReceiver(opts Options) *Receiver {
	if opts.Listen == "" {
		opts.Listen = fmt.Sprintf(":%d", protocol.StandardTCPPort)
	}
	if opts.Protocol.ByteOrder == nil {
		opts.Protocol.ByteOrder = protocol.DefaultOptions().ByteOrder
	}

	metrics := opts.Metrics
	onWarning := opts.Protocol.OnWarning
	opts.Protocol.OnWarning = func(fe *protocol.FieldError) {
		metrics.ObserveWarning(fe)
		if onWarning != nil {
			onWarning(fe)
		}
	}

	trans := tcp.NewTCPTransport(opts.Listen, opts.Protocol)
	trans.SetMetrics(metrics)

	r := &Receiver{
		producers:  make(map[string]*pkg.ProducerMetadata),
		nodes:      make(map[string]transport.Node),
		latest:     make(map[int32]*volume.Volume),
		channels:   make(map[int32]*pkg.ChannelMetadata),
		Transport:  trans,
		opts:       opts,
		advertiser: discovery.NewAdvertiser(),
		quitCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	trans.SetOnPeer(r.OnPeer)
	trans.SetOnDisconnect(r.onDisconnect)
	return r
}

// Start listens and returns once the receive loop is running.
func (r *Receiver) Start() error {
	logger.Sugar.Infof("[Renderer] [%s] starting renderer...", r.opts.Listen)

	if err := r.Transport.ListenAndAccept(); err != nil {
		return err
	}
	r.started = time.Now()

	if r.opts.Advertise {
		r.advertise()
	}
	if r.opts.IdleTimeout > 0 {
		go r.monitorProducers()
	}
	go r.loop()
	return nil
}

func (r *Receiver) advertise() {
	_, portStr, err := net.SplitHostPort(r.Transport.Addr())
	if err != nil {
		logger.Sugar.Errorf("[Renderer] Failed to parse address: %v", err)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return
	}
	meta := map[string]string{
		discovery.MetaVersion:   Version,
		discovery.MetaByteOrder: r.opts.Protocol.ByteOrder.String(),
	}
	if err := r.advertiser.Start(r.opts.Instance, port, meta); err != nil {
		logger.Sugar.Errorf("[Renderer] Failed to start mDNS advertisement: %v", err)
	}
}

// Done is closed when the receive loop exits.
func (r *Receiver) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Receiver) loop() {
	defer close(r.doneCh)
	defer logger.Sugar.Info("[Renderer] stopped")

	for d := range r.Transport.Consume() {
		r.handleDelivery(d)
	}
}

func (r *Receiver) handleDelivery(d transport.Delivery) {
	now := time.Now()

	if d.Err != nil {
		r.mu.Lock()
		r.rejected++
		if p := r.producers[d.From]; p != nil {
			p.Rejected++
			p.LastActive = now
		}
		r.mu.Unlock()
		logger.Sugar.Warnf("[Renderer] rejected frame: from=%s err=%v", d.From, d.Err)
		return
	}

	v := d.Volume
	size := v.DataSizeInBytes()

	r.mu.Lock()
	r.frames++
	r.bytes += uint64(size)
	// the producer may already be gone when a queued frame is handled
	if p := r.producers[d.From]; p != nil {
		p.Frames++
		p.Bytes += uint64(size)
		p.LastActive = now
		p.Channels[v.ChannelID] = v.TimeIndex
	}

	r.latest[v.ChannelID] = v
	r.channels[v.ChannelID] = &pkg.ChannelMetadata{
		ChannelID:   v.ChannelID,
		ChannelName: v.ChannelName,
		TimeIndex:   v.TimeIndex,
		TimeSeconds: v.TimeSeconds,
		Type:        v.Type,
		Width:       v.Width,
		Height:      v.Height,
		Depth:       v.Depth,
		SizeInBytes: size,
		ReceivedAt:  now,
	}
	r.mu.Unlock()

	logger.Sugar.Debugf("[Renderer] volume received: from=%s channel=%d index=%d size=%s",
		d.From, v.ChannelID, v.TimeIndex, humanize.IBytes(uint64(size)))

	if r.opts.Sink != nil {
		if path, err := r.opts.Sink.Write(v); err != nil {
			logger.Sugar.Errorf("[Renderer] sink write failed: channel=%d index=%d err=%v", v.ChannelID, v.TimeIndex, err)
		} else {
			logger.Sugar.Debugf("[Renderer] volume stored: path=%s", path)
		}
	}
	if r.opts.OnVolume != nil {
		r.opts.OnVolume(d.From, v)
	}
}

// Stop is safe to call more than once.
func (r *Receiver) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		r.advertiser.Stop()
		close(r.quitCh)
		err = r.Transport.Close()
		if !r.started.IsZero() {
			<-r.doneCh
		}
	})
	return err
}

func (r *Receiver) OnPeer(peer transport.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[peer.Addr()] = peer
	if _, exist := r.producers[peer.Addr()]; !exist {
		now := time.Now()
		r.producers[peer.Addr()] = &pkg.ProducerMetadata{
			NodeID:      peer.ID(),
			Addr:        peer.Addr(),
			ConnectedAt: now,
			LastActive:  now,
			Channels:    make(map[int32]int64),
		}
	}
	logger.Sugar.Infof("[Renderer] producer connected: remote=%s", peer.Addr())
	return nil
}

func (r *Receiver) onDisconnect(peer transport.Node, err error) {
	r.mu.Lock()
	delete(r.producers, peer.Addr())
	delete(r.nodes, peer.Addr())
	r.mu.Unlock()
	logger.Sugar.Infof("[Renderer] producer disconnected: remote=%s err=%v", peer.Addr(), err)
}

func (r *Receiver) monitorProducers() {
	interval := r.opts.IdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quitCh:
			return
		case <-ticker.C:
			r.mu.Lock()
			now := time.Now()
			var idle []string
			for remoteAddr, p := range r.producers {
				if now.Sub(p.LastActive) > r.opts.IdleTimeout {
					idle = append(idle, remoteAddr)
				}
			}
			r.mu.Unlock()

			for _, remoteAddr := range idle {
				logger.Sugar.Warnf("[Renderer] producer timed out: remote=%s", remoteAddr)
				r.dropProducer(remoteAddr)
			}
		}
	}
}

// dropProducer closes the producer's connection; onDisconnect forgets it.
func (r *Receiver) dropProducer(remoteAddr string) {
	r.mu.Lock()
	node := r.nodes[remoteAddr]
	r.mu.Unlock()
	if node == nil {
		return
	}
	if err := node.Close(); err != nil {
		logger.Sugar.Debugf("[Renderer] close producer: remote=%s err=%v", remoteAddr, err)
	}
}

// Latest returns the newest volume received on channel.
func (r *Receiver) Latest(channel int32) (*volume.Volume, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.latest[channel]
	return v, ok
}

// Channels returns a summary per channel ordered by channel id.
func (r *Receiver) Channels() []pkg.ChannelMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]pkg.ChannelMetadata, 0, len(r.channels))
	for _, c := range r.channels {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ChannelID < list[j].ChannelID })
	return list
}

// GetProducers returns copies of the connected producers ordered by address.
func (r *Receiver) GetProducers() []pkg.ProducerMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]pkg.ProducerMetadata, 0, len(r.producers))
	for _, p := range r.producers {
		cp := *p
		cp.Channels = make(map[int32]int64, len(p.Channels))
		for k, v := range p.Channels {
			cp.Channels[k] = v
		}
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Addr < list[j].Addr })
	return list
}

// Stats returns accepted frames, payload bytes and rejected frames.
func (r *Receiver) Stats() (frames, bytes, rejected uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.bytes, r.rejected
}

func (r *Receiver) GetStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Renderer Running on: %s\n", r.Transport.Addr())
	fmt.Fprintf(&sb, "Connected Producers: %d\n", len(r.producers))
	fmt.Fprintf(&sb, "Frames: %d (%s), Rejected: %d\n", r.frames, humanize.IBytes(r.bytes), r.rejected)
	if r.opts.Sink != nil {
		fmt.Fprintf(&sb, "Sink: %s\n", r.opts.Sink.Dir())
	}

	ids := make([]int32, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := r.channels[id]
		fmt.Fprintf(&sb, " - Channel %d %q: index=%d %s %dx%dx%d %s (%s)\n",
			c.ChannelID, c.ChannelName, c.TimeIndex, c.Type, c.Width, c.Height, c.Depth,
			humanize.IBytes(uint64(c.SizeInBytes)), humanize.Time(c.ReceivedAt))
	}
	return sb.String()
}
