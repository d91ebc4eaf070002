package transport

import (
	"context"

	"tarun-kavipurapu/volstream/pkg/volume"
)

// Delivery is a frame received from the network. Either Volume or Err is set;
// Err carries frame-level decode failures that did not end the connection.
type Delivery struct {
	From   string
	NodeID string
	Volume *volume.Volume
	Err    error
}

// Node represents a remote peer that we can send volumes to
type Node interface {
	SendVolume(v *volume.Volume) error
	Close() error
	Addr() string
	ID() string
}

// Transport handles the network layer
type Transport interface {
	ListenAndAccept() error
	Dial(ctx context.Context, addr string) (Node, error)
	Consume() <-chan Delivery
	Close() error
	Addr() string
	SetOnPeer(func(Node) error)
	SetOnDisconnect(func(Node, error))
}
