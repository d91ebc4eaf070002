package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"tarun-kavipurapu/volstream/pkg/framebuf"
	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/monitor"
	"tarun-kavipurapu/volstream/pkg/protocol"
	"tarun-kavipurapu/volstream/pkg/transport"
	"tarun-kavipurapu/volstream/pkg/volume"
)

var ErrTransportClosed = errors.New("tcp: transport closed")

// TCPNode implements transport.Node
type TCPNode struct {
	conn net.Conn
	lock sync.Mutex
	// outbound is true for connections we dialed
	outbound bool
	id       string
	writer   *protocol.Writer
}

func NewTCPNode(conn net.Conn, outbound bool, opts protocol.Options) *TCPNode {
	return &TCPNode{
		conn:     conn,
		outbound: outbound,
		id:       uuid.NewString(),
		writer:   protocol.NewWriter(conn, opts),
	}
}

// SendVolume writes one frame. Concurrent senders are serialised so frames never interleave.
func (n *TCPNode) SendVolume(v *volume.Volume) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if _, err := n.writer.WriteVolume(v); err != nil {
		return fmt.Errorf("send volume: %w", err)
	}
	return nil
}

func (n *TCPNode) Close() error {
	err := n.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (n *TCPNode) Addr() string {
	return n.conn.RemoteAddr().String()
}

func (n *TCPNode) ID() string {
	return n.id
}

func (n *TCPNode) Outbound() bool {
	return n.outbound
}

// TCPTransport implements transport.Transport
type TCPTransport struct {
	listenAddr   string
	listener     net.Listener
	rpcCh        chan transport.Delivery
	onPeer       func(transport.Node) error
	onDisconnect func(transport.Node, error)
	opts         protocol.Options
	pool         *framebuf.Pool
	metrics      *monitor.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	nodes  map[string]*TCPNode
	closed bool
}

func NewTCPTransport(addr string, opts protocol.Options) *TCPTransport {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.ByteOrder == nil {
		opts.ByteOrder = protocol.DefaultOptions().ByteOrder
	}
	return &TCPTransport{
		listenAddr: addr,
		rpcCh:      make(chan transport.Delivery, 64),
		opts:       opts,
		pool:       framebuf.NewPool(opts.ByteOrder, 0),
		ctx:        ctx,
		cancel:     cancel,
		nodes:      make(map[string]*TCPNode),
	}
}

func (t *TCPTransport) SetOnPeer(f func(transport.Node) error) {
	t.onPeer = f
}

// SetMetrics must be called before ListenAndAccept or Dial.
func (t *TCPTransport) SetMetrics(m *monitor.Metrics) {
	t.metrics = m
}

func (t *TCPTransport) SetOnDisconnect(f func(transport.Node, error)) {
	t.onDisconnect = f
}

func (t *TCPTransport) ListenAndAccept() error {
	ln, err := transport.Listen(t.listenAddr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = ln.Close()
		return ErrTransportClosed
	}
	t.listener = ln
	t.wg.Add(1)
	t.mu.Unlock()

	go t.acceptLoop()
	return nil
}

func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Sugar.Errorf("[TCPTransport] accept error: listen=%s err=%v", t.listenAddr, err)
			continue
		}
		node := NewTCPNode(conn, false, t.opts)
		if !t.track(node) {
			_ = conn.Close()
			return
		}
		go t.handleConn(node)
	}
}

// track registers node and reserves a worker slot. It fails once Close has started.
func (t *TCPTransport) track(node *TCPNode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.nodes[node.id] = node
	t.wg.Add(1)
	return true
}

func (t *TCPTransport) untrack(node *TCPNode) {
	t.mu.Lock()
	delete(t.nodes, node.id)
	t.mu.Unlock()
	_ = node.Close()
}

// handleConn is the per-connection worker. It owns one scratch buffer from the
// pool for the lifetime of the connection.
func (t *TCPTransport) handleConn(node *TCPNode) {
	defer t.wg.Done()
	defer t.untrack(node)

	if !node.outbound && t.onPeer != nil {
		if err := t.onPeer(node); err != nil {
			logger.Sugar.Warnf("[TCPTransport] peer rejected: remote=%s err=%v", node.Addr(), err)
			return
		}
	}

	t.metrics.ConnectionOpened()
	defer t.metrics.ConnectionClosed()

	scratch := t.pool.Get()
	defer t.pool.Put(scratch)
	reader := protocol.NewReader(node.conn, t.opts, scratch)

	var cause error
	for {
		start := time.Now()
		v, err := reader.ReadVolume(t.ctx, nil)
		if err != nil {
			t.metrics.ObserveError(err)
			if protocol.Recoverable(err) {
				logger.Sugar.Warnf("[TCPTransport] dropping frame: remote=%s err=%v", node.Addr(), err)
				if !t.deliver(transport.Delivery{From: node.Addr(), NodeID: node.id, Err: err}) {
					break
				}
				continue
			}
			if errors.Is(err, protocol.ErrChannelClosed) || t.ctx.Err() != nil {
				logger.Sugar.Debugf("[TCPTransport] connection closed: remote=%s err=%v", node.Addr(), err)
			} else {
				logger.Sugar.Errorf("[TCPTransport] read frame error: remote=%s err=%v", node.Addr(), err)
			}
			cause = err
			break
		}
		t.metrics.ObserveFrame(v.DataSizeInBytes(), time.Since(start))

		if !t.deliver(transport.Delivery{From: node.Addr(), NodeID: node.id, Volume: v}) {
			break
		}
	}

	if t.onDisconnect != nil {
		t.onDisconnect(node, cause)
	}
}

// deliver blocks until the consumer takes d or the transport shuts down.
func (t *TCPTransport) deliver(d transport.Delivery) bool {
	select {
	case t.rpcCh <- d:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *TCPTransport) Dial(ctx context.Context, addr string) (transport.Node, error) {
	conn, err := transport.DialContext(ctx, addr)
	if err != nil {
		return nil, err
	}

	node := NewTCPNode(conn, true, t.opts)
	if !t.track(node) {
		_ = conn.Close()
		return nil, ErrTransportClosed
	}
	go t.handleConn(node)

	return node, nil
}

func (t *TCPTransport) Consume() <-chan transport.Delivery {
	return t.rpcCh
}

// Close stops accepting, closes every connection, waits for the workers and
// then closes the Consume channel.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	nodes := make([]*TCPNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n)
	}
	t.mu.Unlock()

	t.cancel()

	var err error
	if t.listener != nil {
		if cerr := t.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, n := range nodes {
		err = multierr.Append(err, n.Close())
	}

	t.wg.Wait()
	close(t.rpcCh)
	return err
}

// Addr returns the bound address once listening, the configured one before.
func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.listenAddr
}

// Nodes returns the number of live connections.
func (t *TCPTransport) Nodes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}
