package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"tarun-kavipurapu/volstream/pkg/keyvalue"
	"tarun-kavipurapu/volstream/pkg/logger"
)

const (
	// ServiceType defines the mDNS service type for volume renderers
	ServiceType = "_volstream._tcp"
	// Domain is the local domain for mDNS
	Domain = "local."
)

// TXT record keys published by a renderer.
const (
	MetaVersion   = "version"
	MetaByteOrder = "byteorder"
	MetaNodeID    = "node"
)

var ErrNotFound = errors.New("discovery: no renderer found")

// ServiceInfo contains information about a discovered service
type ServiceInfo struct {
	InstanceName string
	HostName     string
	Port         int
	IPs          []string
	Meta         map[string]string
}

// Addr returns the first IP joined with the port.
func (s *ServiceInfo) Addr() string {
	if len(s.IPs) == 0 {
		return ""
	}
	return net.JoinHostPort(s.IPs[0], strconv.Itoa(s.Port))
}

// Advertiser handles service broadcasting
type Advertiser struct {
	server *zeroconf.Server
}

// Resolver handles service discovery
type Resolver struct {
	resolver *zeroconf.Resolver
}

func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Start begins broadcasting the service
func (a *Advertiser) Start(instanceName string, port int, meta map[string]string) error {
	if instanceName == "" {
		instanceName = DefaultInstance()
	}

	txtRecords, err := TXTRecords(meta)
	if err != nil {
		return err
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		port,
		txtRecords,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	logger.Sugar.Infof("[Discovery] advertising: instance=%s port=%d", instanceName, port)
	return nil
}

// Stop stops broadcasting the service
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// DefaultInstance is "volstream-<hostname>".
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "volstream-renderer"
	}
	return fmt.Sprintf("volstream-%s", hostname)
}

// TXTRecords renders meta as key=value strings sorted by key.
func TXTRecords(meta map[string]string) ([]string, error) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]string, 0, len(keys))
	for _, k := range keys {
		m := keyvalue.NewMap()
		m.Set(k, meta[k])
		line, err := keyvalue.Encode(m)
		if err != nil {
			return nil, fmt.Errorf("txt record: %w", err)
		}
		records = append(records, line)
	}
	return records, nil
}

// ParseTXT is the inverse of TXTRecords. Records without '=' are ignored.
func ParseTXT(records []string) map[string]string {
	return keyvalue.Decode(strings.Join(records, "\n"))
}

// NewResolver creates a new service resolver
func NewResolver() (*Resolver, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return &Resolver{resolver: resolver}, nil
}

// Browse scans for services until the context is canceled.
// It returns a channel that will receive discovered services.
func (r *Resolver) Browse(ctx context.Context) (<-chan *ServiceInfo, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan *ServiceInfo, 10)

	if err := r.resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse services: %w", err)
	}

	go func() {
		defer close(results)

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}

				info := &ServiceInfo{
					InstanceName: entry.Instance,
					HostName:     entry.HostName,
					Port:         entry.Port,
					IPs:          make([]string, 0, len(entry.AddrIPv4)),
					Meta:         ParseTXT(entry.Text),
				}
				// IPv4 only
				for _, ip := range entry.AddrIPv4 {
					info.IPs = append(info.IPs, ip.String())
				}

				if len(info.IPs) == 0 {
					continue
				}
				logger.Sugar.Infof("[Discovery] discovered service: instance=%s ips=%v port=%d", info.InstanceName, info.IPs, info.Port)
				select {
				case results <- info:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return results, nil
}

// FindFirst browses until one renderer answers or ctx expires.
func (r *Resolver) FindFirst(ctx context.Context) (*ServiceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := r.Browse(ctx)
	if err != nil {
		return nil, err
	}
	info, ok := <-ch
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}
