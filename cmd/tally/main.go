package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tallyhq/tally/pkg/agent"
	"github.com/tallyhq/tally/pkg/agentserver"
	"github.com/tallyhq/tally/pkg/bus"
	"github.com/tallyhq/tally/pkg/config"
	"github.com/tallyhq/tally/pkg/ledger"
	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/model"
	"github.com/tallyhq/tally/pkg/preferences"
	"github.com/tallyhq/tally/pkg/tool"
)

// Version information set via ldflags during build.
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to config file (YAML)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("tally %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, "server")
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.SetMinLevel(logging.Level(cfg.Logging.Level))

	ledgerClient := ledger.NewHTTPClient(cfg.Ledger.BaseURL,
		ledger.WithAPIKey(os.Getenv(cfg.Ledger.APIKeyEnv)),
		ledger.WithHTTPClient(&http.Client{Timeout: cfg.Ledger.Timeout}),
	)

	registry := tool.NewRegistry(ledgerClient)
	registry.Use(tool.Metrics())
	registry.Use(tool.Retry(tool.RetryConfig{MaxAttempts: 3, Backoff: 500 * time.Millisecond}))
	registry.Use(tool.Timeout(cfg.Ledger.Timeout))
	registry.Use(tool.Validation())

	modelClient := model.NewClient(
		cfg.Model.BaseURL,
		os.Getenv(cfg.Model.APIKeyEnv),
		cfg.Model.Name,
		model.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
	)

	messageBus, err := buildBus(cfg)
	if err != nil {
		return err
	}
	defer messageBus.Close()

	prefStore, err := preferences.NewFileStore(cfg.Preferences.Dir)
	if err != nil {
		return err
	}

	manager := agent.NewManager(agent.Deps{
		Model:          modelClient,
		Registry:       registry,
		Prefs:          prefStore,
		Bus:            messageBus,
		Logger:         logger,
		ConfirmTimeout: cfg.Agent.ConfirmationTimeout,
	})

	server := agentserver.New(manager, messageBus, agentserver.WithLogger(logger))
	httpServer := &http.Server{
		Addr:         cfg.Server.Bind,
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket event streams are long-lived
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(logging.CategoryServer, "listening", "agent server started",
			map[string]any{"bind": cfg.Server.Bind, "version": version})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(logging.CategoryServer, "shutdown", "signal received, draining", nil)
	manager.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildBus(cfg *config.Config) (bus.MessageBus, error) {
	switch cfg.Bus.Kind {
	case "nats":
		return bus.NewNATSBus(bus.Config{URL: cfg.Bus.URL, Name: cfg.Bus.Name})
	default:
		return bus.NewMemoryBus(), nil
	}
}
