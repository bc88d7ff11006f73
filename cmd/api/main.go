package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/campusledger/reconcile/internal/api"
	"github.com/campusledger/reconcile/internal/application/pipeline"
	"github.com/campusledger/reconcile/internal/infrastructure/config"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
	"github.com/campusledger/reconcile/internal/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		port       = flag.Int("port", 0, "Override the configured server port")
	)
	flag.Parse()

	cfg := config.LoadOrEnv(*configFile)
	logger := observability.NewLogger(cfg.Observability.Logging)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	p := pipeline.New(store, cfg.Matching, logger)

	serverCfg := api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if *port > 0 {
		serverCfg.Port = *port
	}

	server := api.NewServer(serverCfg, store, p, logger)
	if err := server.Start(); err != nil {
		logger.Error("Server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
