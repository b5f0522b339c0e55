package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/templetwo/spiralbridge/common/environment"
	"github.com/templetwo/spiralbridge/common/version"
	"github.com/templetwo/spiralbridge/internal/bridge/app"
	"github.com/templetwo/spiralbridge/internal/bridge/billing"
	"github.com/templetwo/spiralbridge/internal/bridge/server"
)

func main() {
	fmt.Printf("SpiralBridge Memory Service\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	setupLogging()

	// Load configuration from environment
	config := loadConfig()

	// Create application
	bridge, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize SpiralBridge: %v\n", err)
		os.Exit(1)
	}
	defer bridge.Stop()

	// Run application
	if err := bridge.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running SpiralBridge: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() *app.Config {
	return &app.Config{
		DatabasePath:    environment.StringOr("DATABASE_PATH", "./spiralbridge.db"),
		HTTPAddr:        environment.StringOr("HTTP_ADDR", ":8080"),
		APIKey:          environment.StringOr("API_KEY", ""),
		RegistryRoot:    environment.StringOr("REGISTRY_ROOT", ""),
		VocabPath:       environment.StringOr("SPIRAL_VOCAB_PATH", ""),
		ImportRateLimit: environment.IntOr("IMPORT_RATE_LIMIT", server.DefaultImportRateLimit),
		Billing: billing.Config{
			SecretKey:  environment.StringOr("STRIPE_SECRET_KEY", ""),
			PriceID:    environment.StringOr("STRIPE_PRICE_ID", ""),
			SuccessURL: environment.StringOr("CHECKOUT_SUCCESS_URL", ""),
			CancelURL:  environment.StringOr("CHECKOUT_CANCEL_URL", ""),
		},
	}
}

// setupLogging configures the default slog logger from LOG_LEVEL
// (debug, info, warn, error; default info).
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(environment.StringOr("LOG_LEVEL", "")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
