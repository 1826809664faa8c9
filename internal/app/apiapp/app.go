package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/config"
	"github.com/aiplace-art/cry-sub006/internal/domain/tokenomics"
	"github.com/aiplace-art/cry-sub006/internal/infra/gateway"
	"github.com/aiplace-art/cry-sub006/internal/infra/notify"
	"github.com/aiplace-art/cry-sub006/internal/infra/treasury"
	"github.com/aiplace-art/cry-sub006/internal/jobs/expiry"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
	redrepo "github.com/aiplace-art/cry-sub006/internal/repo/redis"
	claimsvc "github.com/aiplace-art/cry-sub006/internal/services/claims"
	fraudsvc "github.com/aiplace-art/cry-sub006/internal/services/fraud"
	purchasesvc "github.com/aiplace-art/cry-sub006/internal/services/purchases"
	webhooksvc "github.com/aiplace-art/cry-sub006/internal/services/webhooks"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	sweeper    *expiry.Job
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	idempotencyRepo := redrepo.NewIdempotencyRepo(redisClient, cfg.Gateways.EventRetention)
	signalRepo := redrepo.NewSignalRepo(redisClient, cfg.Fraud.IPWindow)

	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	claimRepo := pgrepo.NewClaimRepo(pool)
	suspiciousRepo := pgrepo.NewSuspiciousActivityRepo(pool)

	schedule, err := tokenomics.NewSchedule(
		cfg.Vesting.ImmediateBps,
		cfg.Vesting.CliffDuration,
		cfg.Vesting.VestingDuration,
	)
	if err != nil {
		return nil, fmt.Errorf("vesting schedule: %w", err)
	}

	tiers := make([]tokenomics.BonusTier, 0, len(cfg.Bonus.Tiers))
	for _, tier := range cfg.Bonus.Tiers {
		tiers = append(tiers, tokenomics.BonusTier{MinCents: tier.MinCents, Bps: tier.Bps})
	}
	bonus, err := tokenomics.NewBonusCalculator(tiers, cfg.Bonus.FlatBps, cfg.Sale.TokenPriceNanoUSD)
	if err != nil {
		return nil, fmt.Errorf("bonus calculator: %w", err)
	}

	registry := gateway.NewRegistry(
		gateway.NewColexpay(cfg.Gateways.Colexpay.BaseURL, cfg.Gateways.Colexpay.APIKey, cfg.Gateways.Colexpay.IPNSecret),
		gateway.NewOpenpays(cfg.Gateways.Openpays.BaseURL, cfg.Gateways.Openpays.APIKey, cfg.Gateways.Openpays.IPNSecret),
	)

	var notifier *notify.TelegramNotifier
	if cfg.Notify.TelegramToken != "" {
		chatID, err := strconv.ParseInt(cfg.Notify.TelegramChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse telegram chat id: %w", err)
		}
		n, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, chatID, log)
		if err != nil {
			log.Warn("telegram notifier init failed, continuing without notifications", zap.Error(err))
		} else {
			notifier = n
		}
	}

	fraudService := fraudsvc.NewService(purchaseRepo, signalRepo, suspiciousRepo, fraudsvc.Config{
		RecentPurchaseWindow: cfg.Fraud.RecentPurchaseWindow,
		RecentPurchaseLimit:  cfg.Fraud.RecentPurchaseLimit,
		WalletsPerIPLimit:    cfg.Fraud.WalletsPerIPLimit,
		HighValueCents:       cfg.Fraud.HighValueCents,
		RejectScore:          cfg.Fraud.RejectScore,
		VerifyScore:          cfg.Fraud.VerifyScore,
	}, log)

	handleManager := purchasesvc.NewHandleManager(cfg.Sale.HandleSecret, cfg.Sale.PaymentWindow)
	purchaseService := purchasesvc.NewService(
		purchaseRepo,
		fraudService,
		registry,
		handleManager,
		bonus,
		schedule,
		purchasesvc.Config{
			MinPurchaseCents: cfg.Sale.MinPurchaseCents,
			MaxPurchaseCents: cfg.Sale.MaxPurchaseCents,
			Currency:         cfg.Sale.Currency,
			MultiPurchase:    cfg.Sale.MultiPurchase,
		},
		log,
	)

	var webhookNotifier webhooksvc.Notifier
	if notifier != nil {
		webhookNotifier = notifier
	}
	webhookService := webhooksvc.NewService(registry, purchaseRepo, idempotencyRepo, webhookNotifier, log)

	treasuryClient := treasury.NewClient(cfg.Treasury.BaseURL, cfg.Treasury.APIKey, cfg.Treasury.Timeout)
	claimService := claimsvc.NewService(claimRepo, treasuryClient, schedule, log)

	var sweepNotifier interface {
		PurchaseFailed(ctx context.Context, purchaseID, walletAddress, reason string)
	}
	if notifier != nil {
		sweepNotifier = notifier
	}
	sweeper := expiry.NewExpirySweepJob(purchaseRepo, sweepNotifier, cfg.Sale.PaymentWindow, log)

	RegisterRoutes(r, Dependencies{
		PurchaseService: purchaseService,
		ClaimService:    claimService,
		WebhookService:  webhookService,
		Logger:          log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		sweeper:    sweeper,
		httpRouter: r,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Loop(ctx, a.cfg.Sweeper.Interval)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
