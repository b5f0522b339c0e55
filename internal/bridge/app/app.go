// Package app assembles the bridge: storage, vocabulary, analysis, persona
// registry, shadow journals, the import pipeline, billing, and the HTTP
// server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/templetwo/spiralbridge/common/retry"
	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/billing"
	"github.com/templetwo/spiralbridge/internal/bridge/continuity"
	"github.com/templetwo/spiralbridge/internal/bridge/integrity"
	"github.com/templetwo/spiralbridge/internal/bridge/oracle"
	"github.com/templetwo/spiralbridge/internal/bridge/persona"
	"github.com/templetwo/spiralbridge/internal/bridge/pipeline"
	"github.com/templetwo/spiralbridge/internal/bridge/server"
	"github.com/templetwo/spiralbridge/internal/bridge/shadow"
	"github.com/templetwo/spiralbridge/internal/bridge/store"
	"github.com/templetwo/spiralbridge/internal/bridge/vocab"
)

// Config holds application configuration.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string

	// HTTPAddr is the TCP address the API server listens on (e.g. ":8080").
	HTTPAddr string

	// APIKey, when non-empty, is required on every API route except /health.
	APIKey string

	// RegistryRoot is the persona registry root directory. When empty the
	// root is discovered by ascending from the working directory.
	RegistryRoot string

	// VocabPath is an optional YAML file overriding the built-in vocabulary
	// (glyphs, tones, vows, tone groups).
	VocabPath string

	// ImportRateLimit is the maximum /bridge/import calls per caller per
	// minute. Defaults to server.DefaultImportRateLimit when zero.
	ImportRateLimit int

	// Billing configures the payments provider. Checkout stays disabled
	// until both the secret key and price ID are set.
	Billing billing.Config
}

// App is the assembled bridge application.
type App struct {
	config *Config
	store  *store.Store
	server *server.Server
}

// New wires the application together. The persona registry is verified
// against its checksum manifest at startup; failures are warnings, never
// fatal.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Vocabulary: built-in defaults unless an override file is configured.
	v := vocab.Default()
	if config.VocabPath != "" {
		v, err = vocab.Load(config.VocabPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to load vocabulary: %w", err)
		}
		slog.Info("vocabulary loaded", "path", config.VocabPath)
	}
	engine := analysis.New(v)

	registry := persona.NewRegistry(config.RegistryRoot)
	slog.Info("persona registry ready", "root", registry.Root())

	report := integrity.Verify(registry.Root(), slog.Default())
	if !report.OK() {
		slog.Warn("registry integrity check found problems",
			"checked", report.Checked, "failed", len(report.Failed))
	}

	journal := shadow.NewJournal(registry.Root(), slog.Default())
	checker := continuity.New(registry, st, engine, v)
	importer := pipeline.New(oracle.StubFetcher{}, st, engine, slog.Default())

	billingCfg := config.Billing
	if billingCfg.Retry.MaxAttempts == 0 {
		billingCfg.Retry = retry.DefaultConfig
	}
	billingClient := billing.New(billingCfg, slog.Default())
	if billingCfg.SecretKey != "" && billingCfg.PriceID != "" {
		slog.Info("billing checkout ready")
	} else {
		slog.Info("billing not configured; /billing/checkout will report upstream errors")
	}

	srv := server.New(server.Config{
		Addr:            config.HTTPAddr,
		APIKey:          config.APIKey,
		ImportRateLimit: config.ImportRateLimit,
	}, server.Deps{
		Store:    st,
		Engine:   engine,
		Registry: registry,
		Journal:  journal,
		Checker:  checker,
		Importer: importer,
		Billing:  billingClient,
		Logger:   slog.Default(),
	})

	return &App{
		config: config,
		store:  st,
		server: srv,
	}, nil
}

// Run starts the HTTP server and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("spiralbridge is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	slog.Info("stopping server")
	a.server.Stop()

	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}
