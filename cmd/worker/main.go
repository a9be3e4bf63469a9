// Worker consumes flushed session documents from Kafka and pushes each record to Loki.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"ux-telemetry/backend/internal/config"
	"ux-telemetry/backend/internal/telemetry/loki"
	otelsetup "ux-telemetry/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal("worker: LOKI_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName + "-worker",
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if cfg.OTLPEndpoint != "" {
		logger = providers.Slog("ux-telemetry-worker")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.TelemetryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("worker: shutting down")
		cancel()
	}()

	client := loki.NewClient(cfg.LokiURL)
	logger.Info("worker: consuming", "topic", cfg.TelemetryKafkaTopic, "group", cfg.KafkaGroupID, "loki", cfg.LokiURL)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker: stopped")
				return
			}
			logger.Warn("worker: kafka read error", "error", err)
			continue
		}

		var records []json.RawMessage
		if err := json.Unmarshal(msg.Value, &records); err != nil {
			logger.Warn("worker: message is not a session document", "offset", msg.Offset, "error", err)
			continue
		}
		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		for _, raw := range records {
			if err := client.PushRecordJSON(pushCtx, raw); err != nil {
				logger.Warn("worker: loki push failed", "offset", msg.Offset, "error", err)
			}
		}
		pushCancel()
	}
}
