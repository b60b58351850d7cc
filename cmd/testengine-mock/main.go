package main

import (
	"context"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/testengine-ci/internal/api"
	"github.com/seantiz/testengine-ci/internal/config"
	"github.com/seantiz/testengine-ci/internal/engine"
	"github.com/seantiz/testengine-ci/internal/store"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if cfg.Version == "" {
		cfg.Version = version
	}

	logger.Info("testengine-mock: starting",
		"listen_addr", cfg.ListenAddr,
		"completion_delay", cfg.CompletionDelay.String(),
		"completion_status", cfg.CompletionStatus,
		"auth", cfg.Username != "",
	)

	db, err := store.NewSQLiteStore(store.MemoryDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg, err := engine.NewRegistry(db, engine.Config{
		CompletionDelay:  cfg.CompletionDelay,
		CompletionStatus: cfg.CompletionStatus,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create registry: %v", err)
	}
	prometheus.MustRegister(reg)

	srv := api.NewServer(cfg.ListenAddr, reg, api.Options{
		Username: cfg.Username,
		Password: cfg.Password,
		Version:  cfg.Version,
	}, logger)

	runErr := srv.Run(context.Background())

	reg.Close()
	reg.Wait()

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
