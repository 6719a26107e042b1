package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"gopkg.in/natefinch/lumberjack.v2"

	"news-lab/auth"
	"news-lab/moderation"
	"news-lab/protocol"
	"news-lab/repositories"
	"news-lab/runtime"
	"news-lab/runtime/workers"
	"news-lab/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close, index
// close) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(config)

	// 2. Storage (BadgerDB + Bluge search index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation
	words, err := moderation.LoadEmbeddedWords()
	if err != nil {
		return fmt.Errorf("failed to load censored wordlists: %w", err)
	}
	replacement, err := config.characterRune()
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(words, replacement)
	if err != nil {
		return fmt.Errorf("failed to build moderator: %w", err)
	}
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(words)))

	// 4. Core wiring
	repository := repositories.NewNewsRepository(db, blugeWriter, log)
	registry := runtime.NewRegistry()
	codec := protocol.NewCodec()
	fanout := runtime.NewFanout(log, registry, codec, config.BroadcastLimit)

	var verifier *auth.Verifier
	if config.AuthSecret != "" {
		verifier = auth.NewVerifier(config.AuthSecret)
		log.Info("Signed-token authentication enabled")
	}

	dispatcher := runtime.NewDispatcher(log, repository, fanout, codec, moderator, verifier)
	server := runtime.NewServer(log, registry, dispatcher,
		fmt.Sprintf("%s:%d", config.Host, config.TCPPort), config.ShutdownGrace)
	web := transport.NewWebServer(log,
		fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
		server, registry.Len, config.ShutdownGrace)
	health := workers.NewHealthMonitoringWorker(log, config.MetricInterval, registry.Len)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervised execution; blocks until shutdown completes
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(server, web, health)
	sup.Run(ctx)

	log.Info("Server stopped")
	return nil
}

// newLogger keeps the usual stdout logger unless a log file is
// configured, in which case output also goes through a rotating file.
func newLogger(config Config) *slog.Logger {
	if config.LogFilepath == "" {
		return logs.GetLoggerFromString(config.LogLevel)
	}
	logWriter := &lumberjack.Logger{
		Filename:   config.LogFilepath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter),
		&slog.HandlerOptions{Level: parseLevel(config.LogLevel)})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
