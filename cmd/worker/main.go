package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/balance/balancerpc"
	"github.com/Domenick1991/skymiles/internal/bootstrap"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/logging"
	"github.com/Domenick1991/skymiles/internal/notify"
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
	logger := logging.Setup(cfg.Log, "worker", cfg.Service.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := bootstrap.OpenLedger(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	store, _, closeCache := bootstrap.OpenCache(cfg.Redis)
	defer closeCache()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	balanceClient, err := balancerpc.NewClient(cfg.Balance.Address, cfg.Balance.Timeout(), nil)
	if err != nil {
		log.Fatalf("balance client: %v", err)
	}
	defer balanceClient.Close()

	services := bootstrap.NewServices(cfg, bootstrap.Deps{
		Ledger:   ledger,
		Balance:  balanceClient,
		Cache:    store,
		Producer: producer,
		Logger:   logger,
	})

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	sender := notify.NewSender(logger)
	go func() {
		if err := consumer.Consume(ctx, sender.Send); err != nil {
			logger.Error("notification consumer stopped", "error", err)
		}
	}()

	awardTicker := time.NewTicker(time.Duration(cfg.Worker.AwardIntervalMinutes) * time.Minute)
	defer awardTicker.Stop()
	recoveryTicker := time.NewTicker(time.Duration(cfg.Worker.RecoverySweepMinutes) * time.Minute)
	defer recoveryTicker.Stop()
	staleAfter := time.Duration(cfg.Worker.RecoveryStaleAfterMinute) * time.Minute

	logger.Info("worker started", "award_interval_minutes", cfg.Worker.AwardIntervalMinutes, "recovery_sweep_minutes", cfg.Worker.RecoverySweepMinutes)

	for {
		select {
		case <-awardTicker.C:
			summary, err := services.Awards.RunAwardCycle(ctx, time.Now())
			if err != nil {
				logger.Error("award cycle failed", "error", err)
				continue
			}
			logger.Info("award cycle finished",
				"window_end", summary.WindowEnd,
				"flights", summary.FlightsProcessed,
				"bookings", summary.BookingsProcessed,
				"points", summary.TotalPointsAwarded,
				"failures", len(summary.Failures))
		case <-recoveryTicker.C:
			summary, err := services.Settlements.Recover(ctx, staleAfter)
			if err != nil {
				logger.Error("settlement recovery failed", "error", err)
				continue
			}
			if summary.Scanned > 0 {
				logger.Info("settlement recovery finished", "scanned", summary.Scanned, "reserved", summary.Reserved,
					"compensated", summary.Compensated, "inconsistent", summary.Inconsistent)
			}
		case <-ctx.Done():
			logger.Info("shutting down worker")
			return
		}
	}
}
