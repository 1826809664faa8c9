// Standalone expiry sweeper for deployments that run the sweep outside the
// api process.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/config"
	"github.com/aiplace-art/cry-sub006/internal/infra/logger"
	"github.com/aiplace-art/cry-sub006/internal/infra/notify"
	"github.com/aiplace-art/cry-sub006/internal/jobs/expiry"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal("postgres init", zap.Error(err))
	}
	defer pool.Close()

	var notifier *notify.TelegramNotifier
	if cfg.Notify.TelegramToken != "" {
		chatID, parseErr := strconv.ParseInt(cfg.Notify.TelegramChatID, 10, 64)
		if parseErr != nil {
			log.Fatal("parse telegram chat id", zap.Error(parseErr))
		}
		if n, initErr := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, chatID, log); initErr != nil {
			log.Warn("telegram notifier init failed, continuing without notifications", zap.Error(initErr))
		} else {
			notifier = n
		}
	}

	var sweepNotifier interface {
		PurchaseFailed(ctx context.Context, purchaseID, walletAddress, reason string)
	}
	if notifier != nil {
		sweepNotifier = notifier
	}

	job := expiry.NewExpirySweepJob(pgrepo.NewPurchaseRepo(pool), sweepNotifier, cfg.Sale.PaymentWindow, log)
	log.Info("expiry sweeper started", zap.Duration("interval", cfg.Sweeper.Interval))
	job.Loop(ctx, cfg.Sweeper.Interval)
}
