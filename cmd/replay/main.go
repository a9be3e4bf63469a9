// replay drives a session from a script file (or stdin) and writes the flushed documents
// to --log-path. Useful for producing sample session documents without a UI.
//
//	go run ./cmd/replay --log-path ./logs --timeout 30s session.txt
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"

	"ux-telemetry/backend/internal/event"
	"ux-telemetry/backend/internal/event/observer"
	"ux-telemetry/backend/internal/replay"
	"ux-telemetry/backend/internal/session"
	"ux-telemetry/backend/internal/settings"
)

func main() {
	logPath := flag.String("log-path", "", "directory session documents are written to (overrides the settings file)")
	timeout := flag.Duration("timeout", session.DefaultTimeout, "session inactivity timeout")
	settingsPath := flag.String("settings", "", "optional JSON or YAML settings file")
	keepGoing := flag.BoolP("keep-going", "k", false, "continue after a failing command")
	verbose := flag.BoolP("verbose", "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: replay [flags] [script]\n\nReads the script from stdin when no file is given.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *logPath, *settingsPath, *timeout, *keepGoing, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, logPath, settingsPath string, timeout time.Duration, keepGoing bool, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) > 1 {
		return fmt.Errorf("at most one script file, got %d", len(args))
	}
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	cmds, err := replay.Parse(in)
	if err != nil {
		return err
	}

	appSettings := settings.New()
	if settingsPath != "" {
		if err := appSettings.Load(settingsPath); err != nil {
			return err
		}
	}
	if logPath != "" {
		appSettings.AddSetting(event.LogPathSetting, logPath)
	}
	if _, ok := appSettings.GetSetting(event.LogPathSetting); !ok {
		return fmt.Errorf("--log-path is required when the settings file has no %s", event.LogPathSetting)
	}

	eventLogger := event.NewLogger(appSettings, nil, event.WithSlog(logger))
	sessionIDs := observer.NewSessionID()
	eventLogger.AddObserver(sessionIDs)
	manager := session.NewManager(eventLogger,
		session.WithTimeout(timeout),
		session.WithSessionTracker(sessionIDs),
		session.WithSlog(logger),
	)
	manager.Subscribe(session.SessionEnded, func(n session.Notification) {
		logger.Info("replay: session ended", "session_id", n.Session.ID, "events", len(n.Session.EventRecords))
	})
	manager.Subscribe(session.SessionTimedOut, func(n session.Notification) {
		logger.Info("replay: session timed out", "session_id", n.Session.ID)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := &replay.Runner{Driver: manager, Flusher: eventLogger, KeepGoing: keepGoing}
	runErr := runner.Run(ctx, cmds)
	if manager.Active() {
		logger.Info("replay: ending session left open by the script")
		if err := manager.EndSession(context.Background()); err != nil {
			logger.Warn("replay: end session", "error", err)
		}
	}
	return runErr
}
