package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/balance"
	"github.com/Domenick1991/skymiles/internal/bootstrap"
	"github.com/Domenick1991/skymiles/internal/logging"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Log, "balance", cfg.Service.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := bootstrap.OpenBalances(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open balance store: %v", err)
	}
	defer closeStore()

	if err := bootstrap.RunBalance(ctx, cfg, balance.NewService(repo, logger), logger); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
