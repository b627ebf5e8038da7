package event

import "context"

type Publisher interface {
	Publish(ctx context.Context, ev PollEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no Kafka brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PollEvent) error { return nil }
func (NopPublisher) Close() error                             { return nil }
