package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rCfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10kb
		MaxBytes: 10e6, // 10mb
		MaxWait:  1 * time.Second,
		// a new group id replays the topic from the start
		StartOffset: kafka.FirstOffset,
	}
	r := kafka.NewReader(rCfg)

	return &KafkaConsumer{reader: r, logger: logger}, nil
}

// ReadEvent blocks until the next event arrives or ctx is canceled.
func (kc *KafkaConsumer) ReadEvent(ctx context.Context) (PollEvent, error) {
	msg, err := kc.reader.ReadMessage(ctx)
	if err != nil {
		// canceled or EOF is a clean shutdown, the caller's loop stops on it
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return PollEvent{}, err
		}
		kc.logger.Error("error reading message from kafka", "error", err)
		return PollEvent{}, err
	}

	var ev PollEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		kc.logger.Warn("error deserializing poll event", "offset", msg.Offset, "error", err)
		return PollEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return ev, nil
}

func (kc *KafkaConsumer) Close() error {
	if err := kc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
