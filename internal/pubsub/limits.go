package pubsub

import "time"

const (
	WriteTimeout = 10 * time.Second
	PingInterval = 30 * time.Second
	PongTimeout  = 10 * time.Second

	// ReadLimit caps a single incoming frame.
	ReadLimit = 64 << 10

	SendBufferSize = 256

	MaxMessagesPerWindow = 20
	RateLimitWindow      = time.Second
)
