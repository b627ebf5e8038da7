package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Guizzs26/live_polling_system/internal/config"
	"github.com/Guizzs26/live_polling_system/internal/event"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
	"github.com/Guizzs26/live_polling_system/internal/processing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS required")
		os.Exit(1)
	}
	logger.Info("Starting consumer", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)

	consumer, err := event.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
	if err != nil {
		logger.Error("Error creating Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	m := metrics.NewProcessorMetrics(prometheus.DefaultRegisterer, "polling", "event_processor")
	processor := processing.NewEventProcessor(consumer, m, logger)

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Run(mainCtx); err != nil {
			logger.Error("Error during processor execution", "error", err)
		}
	}()

	// The `main` blocks here, waiting for a shutdown signal
	select {
	case <-signalChan:
		logger.Info("Shutdown signal received, stopping the consumer...")
		cancel()
		<-done
	case <-done:
	}

	logger.Info("Consumer terminated")
}
