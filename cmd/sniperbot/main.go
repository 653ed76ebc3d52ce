// Command sniperbot is the entry point for the Solana sniper bot. It loads
// and validates configuration, sets up signal handling, and runs the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/sniperbot/internal/app"
	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/crypto"
	"github.com/alanyoungcy/sniperbot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKeyPath := flag.String("encrypt-key", "", "encrypt the wallet key to this path and exit (reads SNIPER_WALLET_PRIVATE_KEY and SNIPER_WALLET_KEY_PASSWORD)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *encryptKeyPath != "" {
		rawKey := os.Getenv("SNIPER_WALLET_PRIVATE_KEY")
		password := os.Getenv("SNIPER_WALLET_KEY_PASSWORD")
		if err := crypto.EncryptKeyToFile(rawKey, password, *encryptKeyPath); err != nil {
			logger.Error("failed to encrypt wallet key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("encrypted wallet key written", slog.String("path", *encryptKeyPath))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Rebuild the logger at the configured level.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("sniper bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Info("application shut down gracefully")
		case errors.Is(err, domain.ErrGlobalStopLoss):
			logger.Error("engine stopped: global stop loss breached")
			os.Exit(2)
		default:
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("sniper bot stopped")
}
