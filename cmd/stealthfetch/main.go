package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"stealthfetch/internal/app"
	"stealthfetch/internal/shared/config"
	"stealthfetch/internal/shared/logger"
	"stealthfetch/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "stealthfetch.ini")
	providersPath := filepath.Join(*configDir, "providers.json")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	urls := flag.Args()
	if len(urls) == 0 {
		logger.Fatal().Msg("No URLs given. Usage: stealthfetch [-configdir dir] URL [URL ...]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, providersPath).Run(ctx, urls); err != nil {
		logger.Fatal().Err(err).Msg("Fetch cycle failed")
	}
}
