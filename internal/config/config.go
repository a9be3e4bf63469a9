// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the session API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// LogPath is the directory session documents are written to. Seeded into the settings
	// service as the LogPath default; a settings file may override it.
	LogPath string `mapstructure:"LOG_PATH"`
	// SettingsPath is an optional JSON (comments allowed) or YAML settings file.
	SettingsPath string `mapstructure:"SETTINGS_PATH"`
	// SessionTimeoutRaw is the inactivity window (e.g. "5m"). Use SessionTimeout.
	SessionTimeoutRaw string `mapstructure:"SESSION_TIMEOUT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the service.name resource attribute.
	ServiceName string `mapstructure:"SERVICE_NAME"`

	// DatabaseURL is the Postgres DSN for the flush archive; empty disables it.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, flushed documents are also published to TelemetryKafkaTopic.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for flushed session documents.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where documents are pushed (server sink and worker), e.g. http://localhost:3100.
	LokiURL string `mapstructure:"LOKI_URL"`

	// WSSinkURL is an optional websocket endpoint that receives every flushed document.
	WSSinkURL string `mapstructure:"WS_SINK_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("SETTINGS_PATH", "")
	v.SetDefault("SESSION_TIMEOUT", "5m")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SERVICE_NAME", "ux-telemetry")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "ux-telemetry-sessions")
	v.SetDefault("KAFKA_GROUP_ID", "ux-telemetry-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("WS_SINK_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	d, err := time.ParseDuration(cfg.SessionTimeoutRaw)
	if err != nil {
		return nil, fmt.Errorf("config: SESSION_TIMEOUT: %w", err)
	}
	if d <= 0 {
		return nil, errors.New("config: SESSION_TIMEOUT must be positive")
	}
	return &cfg, nil
}

// SessionTimeout parses SessionTimeoutRaw. Returns 5m if unset or invalid.
func (c *Config) SessionTimeout() time.Duration {
	if c == nil {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.SessionTimeoutRaw)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means Kafka publishing is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
