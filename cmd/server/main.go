// Server runs the session API: it owns one session manager and flushes each finished
// session to LOG_PATH and to every configured remote sink (Loki, Kafka, OTLP logs,
// websocket, Postgres archive).
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ux-telemetry/backend/internal/config"
	"ux-telemetry/backend/internal/db"
	"ux-telemetry/backend/internal/event"
	eventdomain "ux-telemetry/backend/internal/event/domain"
	"ux-telemetry/backend/internal/event/observer"
	healthhandler "ux-telemetry/backend/internal/health/handler"
	"ux-telemetry/backend/internal/server"
	"ux-telemetry/backend/internal/session"
	"ux-telemetry/backend/internal/settings"
	"ux-telemetry/backend/internal/telemetry"
	"ux-telemetry/backend/internal/telemetry/loki"
	otelsetup "ux-telemetry/backend/internal/telemetry/otel"
	"ux-telemetry/backend/internal/telemetry/producer"
	"ux-telemetry/backend/internal/telemetry/repository"
	"ux-telemetry/backend/internal/telemetry/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	sendTimeout     = telemetry.DefaultSendTimeout
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if cfg.OTLPEndpoint != "" {
		logger = providers.Slog(cfg.ServiceName)
	}
	slog.SetDefault(logger)

	appSettings := settings.New()
	if cfg.SettingsPath != "" {
		if err := appSettings.Load(cfg.SettingsPath); err != nil {
			log.Fatalf("settings: %v", err)
		}
	}
	if cfg.LogPath != "" {
		appSettings.SetDefault(event.LogPathSetting, cfg.LogPath)
	}
	if _, ok := appSettings.GetSetting(event.LogPathSetting); !ok {
		logger.Warn("server: LogPath is not set; flushes will fail until it is configured")
	}

	var sinks telemetry.Multi
	if cfg.LokiURL != "" {
		sinks = append(sinks, telemetry.Named{Name: "loki", Sink: telemetry.NewBounded(loki.NewClient(cfg.LokiURL), sendTimeout)})
	}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.TelemetryKafkaTopic); kp != nil {
		defer kp.Close()
		sinks = append(sinks, telemetry.Named{Name: "kafka", Sink: telemetry.NewBounded(kp, sendTimeout)})
		logger.Info("server: publishing session documents to kafka", "topic", kp.Topic())
	}
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, telemetry.Named{Name: "otlp", Sink: telemetry.NewBounded(otelsetup.NewSink(providers.LoggerProvider), sendTimeout)})
	}
	if cfg.WSSinkURL != "" {
		wsSink := ws.NewSink(cfg.WSSinkURL)
		defer wsSink.Close()
		sinks = append(sinks, telemetry.Named{Name: "websocket", Sink: telemetry.NewBounded(wsSink, sendTimeout)})
	}
	var pinger healthhandler.Pinger
	var archive server.Archive
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer sqlDB.Close()
		pinger = sqlDB
		repo := repository.NewPostgresRepository(sqlDB)
		archive = repo
		sinks = append(sinks, telemetry.Named{Name: "postgres", Sink: telemetry.NewBounded(repository.NewSink(repo), sendTimeout)})
	}

	// Sends run inside the flush, so documents reach each sink one at a time and in order.
	var remote event.RemoteLogger
	if len(sinks) > 0 {
		remote = sinks
	}

	eventLogger := event.NewLogger(appSettings, remote,
		event.WithSlog(logger),
		event.WithMeterProvider(providers.MeterProvider),
		event.WithTracerProvider(providers.TracerProvider),
	)
	sessionIDs := observer.NewSessionID()
	eventLogger.AddObserver(sessionIDs)
	if host, err := observer.NewHost(ctx); err != nil {
		logger.Warn("server: host info unavailable", "error", err)
	} else {
		eventLogger.AddObserver(host)
	}
	if cfg.Env != "" {
		eventLogger.AddObserver(observer.NewStatic(eventdomain.M("Environment", cfg.Env)))
	}

	manager := session.NewManager(eventLogger,
		session.WithTimeout(cfg.SessionTimeout()),
		session.WithSessionTracker(sessionIDs),
		session.WithSlog(logger),
	)
	manager.Subscribe(session.SessionTimedOut, func(n session.Notification) {
		logger.Info("server: session timed out", "session_id", n.Session.ID, "duration", n.Session.Duration())
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewHandler(server.Deps{Sessions: manager, Flusher: eventLogger, Archive: archive, HealthPinger: pinger, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server: listening", "addr", cfg.HTTPAddr, "session_timeout", cfg.SessionTimeout())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server: http shutdown", "error", err)
	}
	if manager.Active() {
		if err := manager.EndSession(shutdownCtx); err != nil {
			logger.Warn("server: end session on shutdown", "error", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	logger.Info("server: stopped")
}
