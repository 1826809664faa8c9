package fraud

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WalletActivityStore counts a wallet's recently completed purchases.
type WalletActivityStore interface {
	CountCompletedSince(ctx context.Context, walletAddress string, since time.Time) (int, error)
}

// IPSignalStore tracks which wallets an IP has been seen with.
type IPSignalStore interface {
	DistinctWallets(ctx context.Context, ip string) (int, error)
	RecordWallet(ctx context.Context, ip, walletAddress string) error
}

// SuspiciousLog receives rejected attempts for later review.
type SuspiciousLog interface {
	Append(ctx context.Context, walletAddress, ip string, score int, reasons []string, amountCents int64) error
}

type Config struct {
	RecentPurchaseWindow time.Duration
	RecentPurchaseLimit  int
	WalletsPerIPLimit    int
	HighValueCents       int64
	RejectScore          int
	VerifyScore          int
}

type Service struct {
	activity   WalletActivityStore
	ipSignals  IPSignalStore
	suspicious SuspiciousLog
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

type Input struct {
	WalletAddress string
	IP            string
	UserAgent     string
	AmountCents   int64
}

func NewService(activity WalletActivityStore, ipSignals IPSignalStore, suspicious SuspiciousLog, cfg Config, logger *zap.Logger) *Service {
	if cfg.RecentPurchaseWindow <= 0 {
		cfg.RecentPurchaseWindow = 24 * time.Hour
	}
	if cfg.RecentPurchaseLimit <= 0 {
		cfg.RecentPurchaseLimit = 3
	}
	if cfg.WalletsPerIPLimit <= 0 {
		cfg.WalletsPerIPLimit = 3
	}
	if cfg.RejectScore <= 0 {
		cfg.RejectScore = 80
	}
	if cfg.VerifyScore <= 0 {
		cfg.VerifyScore = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		activity:   activity,
		ipSignals:  ipSignals,
		suspicious: suspicious,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Assess gathers signals and scores them. Runs synchronously on the purchase
// path. Each signal source fails open: an unavailable source contributes
// zero instead of blocking unrelated legitimate purchases.
func (s *Service) Assess(ctx context.Context, in Input) Assessment {
	sig := Signal{
		WalletAddress: in.WalletAddress,
		IP:            in.IP,
		UserAgent:     in.UserAgent,
		AmountCents:   in.AmountCents,
	}

	if s.activity != nil {
		since := s.now().UTC().Add(-s.cfg.RecentPurchaseWindow)
		count, err := s.activity.CountCompletedSince(ctx, in.WalletAddress, since)
		if err != nil {
			s.logger.Warn("wallet activity signal unavailable, failing open", zap.Error(err))
			sig.SignalSourcesDegraded = true
		} else {
			sig.RecentPurchaseCount = count
		}
	}

	if s.ipSignals != nil && in.IP != "" {
		count, err := s.ipSignals.DistinctWallets(ctx, in.IP)
		if err != nil {
			s.logger.Warn("ip signal unavailable, failing open", zap.Error(err))
			sig.SignalSourcesDegraded = true
		} else {
			sig.DistinctWalletsForIP = count
		}
	}

	assessment := Score(sig, Thresholds{
		RecentPurchaseLimit: s.cfg.RecentPurchaseLimit,
		WalletsPerIPLimit:   s.cfg.WalletsPerIPLimit,
		HighValueCents:      s.cfg.HighValueCents,
		RejectScore:         s.cfg.RejectScore,
		VerifyScore:         s.cfg.VerifyScore,
	})

	if assessment.Outcome == OutcomeReject && s.suspicious != nil {
		if err := s.suspicious.Append(ctx, in.WalletAddress, in.IP, assessment.Score, assessment.Reasons, in.AmountCents); err != nil {
			s.logger.Error("append suspicious activity", zap.Error(err))
		}
	}

	return assessment
}

// RecordAccepted associates the IP with the wallet after a purchase was
// accepted, feeding the wallets-per-IP signal for later attempts.
func (s *Service) RecordAccepted(ctx context.Context, in Input) {
	if s.ipSignals == nil || in.IP == "" {
		return
	}
	if err := s.ipSignals.RecordWallet(ctx, in.IP, in.WalletAddress); err != nil {
		s.logger.Warn("record ip wallet signal", zap.Error(err))
	}
}
