package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

/*
Balancer: &kafka.Hash{} sends every event of one group to the same
partition, so consumers see a group's poll lifecycle in order.

RequiredAcks: kafka.RequireAll waits for every in-sync replica, so an
ended-poll event survives a leader failover.

Compression: kafka.Snappy, events are JSON and tallies repeat the same keys.
*/
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
		Compression:  kafka.Snappy,
	}

	return &KafkaPublisher{writer: w}, nil
}

// Publish writes ev keyed by its group id.
func (kp *KafkaPublisher) Publish(ctx context.Context, ev PollEvent) error {
	eb, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal poll event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.GroupID),
		Value: eb,
		Time:  ev.Timestamp,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
