package pkg

import "time"

// ProducerMetadata is what the renderer knows about one connected producer.
type ProducerMetadata struct {
	NodeID      string
	Addr        string
	ConnectedAt time.Time
	LastActive  time.Time
	Frames      uint64
	Bytes       uint64
	// Rejected counts frames dropped for header errors.
	Rejected uint64
	// Channels maps channel id -> last time index seen on it
	Channels map[int32]int64
}

// ChannelMetadata summarises the newest volume held for one channel.
type ChannelMetadata struct {
	ChannelID   int32
	ChannelName string
	TimeIndex   int64
	TimeSeconds float64
	Type        string
	Width       int64
	Height      int64
	Depth       int64
	SizeInBytes int
	ReceivedAt  time.Time
}
