// Rankwell - entitlement and usage metering API for the agency dashboard
package main

import (
	"context"
	"os"

	"github.com/rankwell/rankwell/internal/config"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Bootstrap logger until config is loaded
	logger := logging.New("info", "text")

	logger.Info("starting rankwell",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cfg.Version = Version
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"credit_reset_tz", cfg.CreditResetTZ,
		"stripe_enabled", cfg.StripeSecretKey != "",
		"price_mappings", len(cfg.StripePriceTiers),
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
