// Package expiry fails pending purchases whose payment window lapsed with no
// terminal gateway event.
package expiry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
)

type expiredSweeper interface {
	SweepExpired(ctx context.Context, cutoff time.Time) ([]pgrepo.PurchaseRecord, error)
}

type failureNotifier interface {
	PurchaseFailed(ctx context.Context, purchaseID, walletAddress, reason string)
}

type Job struct {
	purchases expiredSweeper
	notifier  failureNotifier
	window    time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewExpirySweepJob(purchases expiredSweeper, notifier failureNotifier, window time.Duration, logger *zap.Logger) *Job {
	if window <= 0 {
		window = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		purchases: purchases,
		notifier:  notifier,
		window:    window,
		now:       time.Now,
		logger:    logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.purchases == nil {
		return nil
	}

	cutoff := j.now().UTC().Add(-j.window)
	swept, err := j.purchases.SweepExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep expired purchases: %w", err)
	}

	if len(swept) == 0 {
		return nil
	}

	if j.notifier != nil {
		for _, purchase := range swept {
			j.notifier.PurchaseFailed(ctx, purchase.ID, purchase.WalletAddress, "payment window expired")
		}
	}

	j.logger.Info("expiry sweep completed", zap.Int("failed", len(swept)))
	return nil
}

// Loop runs the sweep on a fixed interval until the context is canceled.
func (j *Job) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
