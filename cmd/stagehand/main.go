package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	app "github.com/kode4food/stagehand"
	"github.com/kode4food/stagehand/internal/config"
	"github.com/kode4food/stagehand/internal/packs"
	"github.com/kode4food/stagehand/internal/resolve"
	"github.com/kode4food/stagehand/internal/runner"
	"github.com/kode4food/stagehand/internal/server"
	"github.com/kode4food/stagehand/internal/store"
	"github.com/kode4food/stagehand/pkg/log"
)

type stagehand struct {
	cfg        *config.Config
	sessionDoc store.Document
	eventDoc   store.Document
	sessions   *store.SessionTable
	events     *store.EventLog
	packs      *packs.Index
	runner     *runner.Proxy
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrCreateSessionStore = errors.New("failed to create session store")
	ErrCreateEventStore   = errors.New("failed to create event store")
	ErrLoadOverrides      = errors.New("failed to load override table")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &stagehand{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *stagehand) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}

	if err := s.initializePacks(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *stagehand) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Stagehand starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("packs_root", s.cfg.PacksRoot),
		slog.String("overrides_path", s.cfg.OverridesPath),
		slog.String("session_backend", string(s.cfg.SessionStore.Backend)),
		slog.String("event_backend", string(s.cfg.EventStore.Backend)),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *stagehand) initializeStores() error {
	ctx := context.Background()
	var err error

	s.sessionDoc, err = store.NewDocument(&s.cfg.SessionStore, "sessions")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateSessionStore, err)
	}

	s.sessions, err = store.NewSessionTable(ctx, s.sessionDoc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateSessionStore, err)
	}

	s.eventDoc, err = store.NewDocument(&s.cfg.EventStore, "events")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateEventStore, err)
	}

	s.events, err = store.NewEventLog(ctx, s.eventDoc, s.cfg.EventLogLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateEventStore, err)
	}

	return nil
}

func (s *stagehand) initializePacks() error {
	overrides, err := resolve.LoadTable(s.cfg.OverridesPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadOverrides, err)
	}

	s.packs = packs.New(s.cfg.PacksRoot, overrides)
	if err := s.packs.Reload(); err != nil {
		return err
	}

	slog.Info("Pack index loaded",
		slog.Int("count", s.packs.Len()))
	return nil
}

func (s *stagehand) startServer() {
	s.runner = runner.NewProxy(s.events, runner.EchoBackend{})

	s.apiServer = server.NewServer(s.cfg, s.packs, s.sessions, s.runner)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *stagehand) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	if err := s.sessionDoc.Close(); err != nil {
		slog.Error("Session store close failed", log.Error(err))
	}
	if err := s.eventDoc.Close(); err != nil {
		slog.Error("Event store close failed", log.Error(err))
	}

	slog.Info("Server exited")
}
