package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/balance/balancerpc"
	"github.com/Domenick1991/skymiles/internal/bootstrap"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/logging"
	"github.com/Domenick1991/skymiles/internal/metrics"
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
	logger := logging.Setup(cfg.Log, cfg.Service.Name, cfg.Service.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := bootstrap.OpenLedger(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	m := metrics.New(cfg.Service.Name)

	store, pingCache, closeCache := bootstrap.OpenCache(cfg.Redis)
	defer closeCache()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	balanceClient, err := balancerpc.NewClient(cfg.Balance.Address, cfg.Balance.Timeout(), nil, balancerpc.WithMetrics(m))
	if err != nil {
		log.Fatalf("balance client: %v", err)
	}
	defer balanceClient.Close()

	services := bootstrap.NewServices(cfg, bootstrap.Deps{
		Ledger:   ledger,
		Balance:  balanceClient,
		Cache:    store,
		Producer: producer,
		Metrics:  m,
		Logger:   logger,
	})

	app := bootstrap.App{
		Flights:      services.Flights,
		Reservations: services.Reservations,
		Settlements:  services.Settlements,
		Awards:       services.Awards,
		Metrics:      m,
		Checks: map[string]bootstrap.HealthCheck{
			"ledger":  ledger.Ping,
			"cache":   pingCache,
			"kafka":   producer.CheckConnection,
			"balance": balanceClient.Ping,
		},
	}

	if err := bootstrap.Run(ctx, cfg, app); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
