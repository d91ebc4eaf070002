package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"tarun-kavipurapu/volstream/pkg/discovery"
	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/transport"
	"tarun-kavipurapu/volstream/pkg/transport/tcp"
	"tarun-kavipurapu/volstream/pkg/volume"
)

var ErrNotConnected = errors.New("producer: not connected")

type Options struct {
	// Renderer is the address to dial. When empty the renderer is looked up over mDNS.
	Renderer string
	Protocol protocol.Options

	// DialTimeout bounds all connection attempts together. Zero retries until ctx is done.
	DialTimeout time.Duration
	// DiscoveryTimeout bounds the mDNS lookup.
	DiscoveryTimeout time.Duration
}

// Producer streams volumes to one renderer
type Producer struct {
	Transport transport.Transport
	opts      Options

	mu   sync.Mutex
	node transport.Node
}

func NewProducer(opts Options) *Producer {
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = 3 * time.Second
	}
	trans := tcp.NewTCPTransport(":0", opts.Protocol)
	p := &Producer{Transport: trans, opts: opts}
	trans.SetOnDisconnect(p.onDisconnect)
	return p
}

// Connect dials the renderer, retrying with exponential backoff.
func (p *Producer) Connect(ctx context.Context) error {
	addr := p.opts.Renderer
	if addr == "" {
		found, err := p.discover(ctx)
		if err != nil {
			return err
		}
		addr = found
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = p.opts.DialTimeout

	var node transport.Node
	op := func() error {
		n, err := p.Transport.Dial(ctx, addr)
		if err != nil {
			if errors.Is(err, tcp.ErrTransportClosed) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		node = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Sugar.Warnf("[Producer] dial failed, retrying: addr=%s wait=%s err=%v", addr, wait, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("connect to renderer %s: %w", addr, err)
	}

	p.mu.Lock()
	old := p.node
	p.node = node
	p.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	logger.Sugar.Infof("[Producer] connected: renderer=%s node=%s", node.Addr(), node.ID())
	return nil
}

func (p *Producer) discover(ctx context.Context) (string, error) {
	resolver, err := discovery.NewResolver()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.DiscoveryTimeout)
	defer cancel()

	info, err := resolver.FindFirst(ctx)
	if err != nil {
		return "", err
	}
	logger.Sugar.Infof("[Producer] renderer discovered: instance=%s addr=%s", info.InstanceName, info.Addr())
	return info.Addr(), nil
}

func (p *Producer) onDisconnect(node transport.Node, err error) {
	p.mu.Lock()
	if p.node == node {
		p.node = nil
	}
	p.mu.Unlock()
	logger.Sugar.Infof("[Producer] renderer disconnected: remote=%s err=%v", node.Addr(), err)
}

// Connected reports whether a renderer connection is open.
func (p *Producer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node != nil
}

// Send writes one volume to the renderer.
func (p *Producer) Send(v *volume.Volume) error {
	p.mu.Lock()
	node := p.node
	p.mu.Unlock()
	if node == nil {
		return ErrNotConnected
	}
	return node.SendVolume(v)
}

// Stream sends count volumes from gen at most fps per second. count 0 streams
// until ctx is done; fps <= 0 sends as fast as the connection allows. A failed
// frame is recorded on tracker and the stream continues unless the connection is gone.
func (p *Producer) Stream(ctx context.Context, gen *Generator, count uint64, fps float64, tracker *StreamTracker) error {
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	limiter := rate.NewLimiter(limit, 1)
	defer tracker.MarkComplete()

	for sent := uint64(0); count == 0 || sent < count; sent++ {
		if err := limiter.Wait(ctx); err != nil {
			if count == 0 && ctx.Err() != nil {
				return nil
			}
			return err
		}

		v, err := gen.Next()
		if err != nil {
			return err
		}
		tracker.StartFrame(v.TimeIndex)
		if err := p.Send(v); err != nil {
			tracker.FailFrame(v.TimeIndex)
			logger.Sugar.Errorf("[Producer] send failed: index=%d err=%v", v.TimeIndex, err)
			if !p.Connected() {
				return err
			}
			continue
		}
		tracker.CompleteFrame(v.TimeIndex, v.DataSizeInBytes())
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Transport.Close()
}
