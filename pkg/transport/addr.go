package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mdlayher/vsock"

	"tarun-kavipurapu/volstream/pkg/protocol"
)

const (
	SchemeTCP   = "tcp"
	SchemeVsock = "vsock"
)

// Address is a parsed endpoint: "host:port", "tcp://host:port" or "vsock://cid:port".
type Address struct {
	Scheme string
	// Host is the TCP host, empty for vsock.
	Host string
	// CID is the vsock context id. Ignored when listening.
	CID  uint32
	Port uint32
}

// ParseAddress parses s. A missing port defaults to protocol.StandardTCPPort.
func ParseAddress(s string) (Address, error) {
	scheme := SchemeTCP
	rest := strings.TrimSpace(s)
	if i := strings.Index(rest, "://"); i >= 0 {
		scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
	}

	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		host = rest
		portStr = strconv.Itoa(protocol.StandardTCPPort)
	}
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port in %q: %w", s, err)
	}

	switch scheme {
	case SchemeTCP:
		if port > 65535 {
			return Address{}, fmt.Errorf("invalid port in %q", s)
		}
		return Address{Scheme: SchemeTCP, Host: host, Port: uint32(port)}, nil
	case SchemeVsock:
		var cid uint64
		if host != "" {
			cid, err = strconv.ParseUint(host, 10, 32)
			if err != nil {
				return Address{}, fmt.Errorf("invalid vsock context id in %q: %w", s, err)
			}
		}
		return Address{Scheme: SchemeVsock, CID: uint32(cid), Port: uint32(port)}, nil
	default:
		return Address{}, fmt.Errorf("unsupported scheme %q in %q", scheme, s)
	}
}

func (a Address) String() string {
	if a.Scheme == SchemeVsock {
		return fmt.Sprintf("vsock://%d:%d", a.CID, a.Port)
	}
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}

// Listen opens a listener for addr.
func Listen(addr string) (net.Listener, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if a.Scheme == SchemeVsock {
		l, err := vsock.Listen(a.Port, nil)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return net.Listen("tcp", a.String())
}

// DialContext connects to addr. vsock dials are not interruptible by ctx.
func DialContext(ctx context.Context, addr string) (net.Conn, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if a.Scheme == SchemeVsock {
		c, err := vsock.Dial(a.CID, a.Port, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", a.String())
}
