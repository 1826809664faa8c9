package claims

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/domain/tokenomics"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrWalletMismatch     = errors.New("purchase belongs to another wallet")
	ErrNotCompleted       = errors.New("purchase is not completed")
	ErrNothingToClaim     = errors.New("nothing to claim")
	ErrDisbursementFailed = errors.New("token disbursement failed")
)

var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type ClaimStore interface {
	Reserve(ctx context.Context, purchaseID string, claimableFn func(pgrepo.PurchaseRecord) (int64, error)) (pgrepo.ClaimRecord, error)
	Settle(ctx context.Context, claimID, txHash string) (pgrepo.ClaimRecord, error)
	Revert(ctx context.Context, claimID string) error
	ListByWallet(ctx context.Context, walletAddress string) ([]pgrepo.ClaimRecord, error)
}

type Treasury interface {
	Disburse(ctx context.Context, claimID, walletAddress string, microTokens int64) (string, error)
}

type Service struct {
	store    ClaimStore
	treasury Treasury
	schedule tokenomics.Schedule
	logger   *zap.Logger
	now      func() time.Time
}

type ClaimInput struct {
	PurchaseID    string
	WalletAddress string
}

type ClaimResult struct {
	ClaimID      string
	AmountTokens int64
	TxHash       string
}

func NewService(store ClaimStore, treasury Treasury, schedule tokenomics.Schedule, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		treasury: treasury,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Claim settles the currently claimable tranche for a completed purchase.
// The amount is reserved inside a transaction that holds the wallet lock,
// the treasury call runs after that transaction commits, and a failed
// disbursement reverts the reservation so the tokens stay claimable.
func (s *Service) Claim(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	if s.store == nil || s.treasury == nil {
		return ClaimResult{}, fmt.Errorf("claim service dependencies are not configured")
	}

	purchaseID := strings.TrimSpace(in.PurchaseID)
	if purchaseID == "" {
		return ClaimResult{}, fmt.Errorf("%w: missing purchase id", ErrValidation)
	}
	wallet := strings.ToLower(strings.TrimSpace(in.WalletAddress))
	if !walletAddressPattern.MatchString(wallet) {
		return ClaimResult{}, fmt.Errorf("%w: malformed wallet address", ErrValidation)
	}

	now := s.now().UTC()
	claim, err := s.store.Reserve(ctx, purchaseID, func(purchase pgrepo.PurchaseRecord) (int64, error) {
		if purchase.WalletAddress != wallet {
			return 0, ErrWalletMismatch
		}
		if purchase.CompletedAt == nil {
			return 0, ErrNotCompleted
		}
		return s.schedule.Claimable(*purchase.CompletedAt, now, purchase.TotalTokens, purchase.ClaimedTokens)
	})
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrNotCompleted):
			return ClaimResult{}, ErrNotCompleted
		case errors.Is(err, pgrepo.ErrNothingToClaim):
			return ClaimResult{}, ErrNothingToClaim
		case errors.Is(err, pgrepo.ErrPurchaseNotFound):
			return ClaimResult{}, fmt.Errorf("%w: unknown purchase", ErrValidation)
		default:
			return ClaimResult{}, err
		}
	}

	txHash, err := s.treasury.Disburse(ctx, claim.ID, claim.WalletAddress, claim.AmountTokens)
	if err != nil {
		s.logger.Error("disbursement failed, reverting claim",
			zap.String("claim_id", claim.ID),
			zap.String("purchase_id", claim.PurchaseID),
			zap.Int64("amount_tokens", claim.AmountTokens),
			zap.Error(err),
		)
		if revertErr := s.store.Revert(ctx, claim.ID); revertErr != nil {
			// The reservation is now stuck pending; the operator has the
			// claim id in both log lines to reconcile manually.
			s.logger.Error("revert after failed disbursement also failed",
				zap.String("claim_id", claim.ID),
				zap.Error(revertErr),
			)
		}
		return ClaimResult{}, fmt.Errorf("%w: %v", ErrDisbursementFailed, err)
	}

	settled, err := s.store.Settle(ctx, claim.ID, txHash)
	if err != nil {
		// Tokens already moved on chain. Keep the claim pending rather than
		// reverting: settlement can be replayed from the tx hash.
		s.logger.Error("settle after successful disbursement failed",
			zap.String("claim_id", claim.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return ClaimResult{}, err
	}

	return ClaimResult{
		ClaimID:      settled.ID,
		AmountTokens: settled.AmountTokens,
		TxHash:       txHash,
	}, nil
}

// History lists a wallet's claims, newest first.
func (s *Service) History(ctx context.Context, walletAddress string) ([]pgrepo.ClaimRecord, error) {
	wallet := strings.ToLower(strings.TrimSpace(walletAddress))
	if !walletAddressPattern.MatchString(wallet) {
		return nil, fmt.Errorf("%w: malformed wallet address", ErrValidation)
	}
	return s.store.ListByWallet(ctx, wallet)
}
