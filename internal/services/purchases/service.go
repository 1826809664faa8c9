package purchases

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/domain/enums"
	"github.com/aiplace-art/cry-sub006/internal/domain/tokenomics"
	"github.com/aiplace-art/cry-sub006/internal/infra/gateway"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
	fraudsvc "github.com/aiplace-art/cry-sub006/internal/services/fraud"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrFraudRejected     = errors.New("purchase rejected by fraud policy")
	ErrDuplicatePurchase = errors.New("wallet already has an active purchase")
	ErrPurchaseNotFound  = errors.New("purchase not found")
)

var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type PurchaseStore interface {
	Create(ctx context.Context, in pgrepo.CreatePurchaseInput) (pgrepo.PurchaseRecord, error)
	FindByID(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, error)
	ListByWallet(ctx context.Context, walletAddress string) ([]pgrepo.PurchaseRecord, error)
	SumNonFailedCents(ctx context.Context, walletAddress string) (int64, error)
	AttachExternalReference(ctx context.Context, purchaseID, externalReference string) error
}

type FraudService interface {
	Assess(ctx context.Context, in fraudsvc.Input) fraudsvc.Assessment
	RecordAccepted(ctx context.Context, in fraudsvc.Input)
}

type Config struct {
	MinPurchaseCents int64
	MaxPurchaseCents int64
	Currency         string
	// MultiPurchase allows several purchases per wallet with the cumulative
	// amount capped by MaxPurchaseCents instead of one live purchase.
	MultiPurchase bool
}

type Service struct {
	store    PurchaseStore
	fraud    FraudService
	gateways *gateway.Registry
	handles  *HandleManager
	bonus    *tokenomics.BonusCalculator
	schedule tokenomics.Schedule
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

type CreateInput struct {
	WalletAddress string
	PaymentMethod string
	Gateway       string
	AmountCents   int64
	Email         string
	FlatBonus     bool
	IP            string
	UserAgent     string
}

type CreateResult struct {
	PurchaseID           string
	BaseTokens           int64
	BonusTokens          int64
	TotalTokens          int64
	PaymentURL           string
	PaymentToken         string
	ExpiresAt            time.Time
	RequiresVerification bool
}

type VestingState struct {
	PurchaseID      string
	TotalTokens     int64
	ImmediateTokens int64
	VestedTokens    int64
	ClaimedTokens   int64
	UnlockedTokens  int64
	ClaimableTokens int64
	ProgressBps     int64
	InCliff         bool
}

type History struct {
	Purchases      []pgrepo.PurchaseRecord
	Vesting        []VestingState
	TotalClaimable int64
	Milestones     []tokenomics.Milestone
}

// PaymentStatus is the view a buyer gets back from the gateway return page,
// addressed by the payment handle instead of the wallet.
type PaymentStatus struct {
	PurchaseID  string
	Status      enums.PurchaseStatus
	AmountCents int64
	TotalTokens int64
	CompletedAt *time.Time
}

func NewService(
	store PurchaseStore,
	fraud FraudService,
	gateways *gateway.Registry,
	handles *HandleManager,
	bonus *tokenomics.BonusCalculator,
	schedule tokenomics.Schedule,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		fraud:    fraud,
		gateways: gateways,
		handles:  handles,
		bonus:    bonus,
		schedule: schedule,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create validates a purchase request, runs the fraud gate, snapshots the
// token quote and opens a payment window with the chosen gateway. The
// purchase stays PENDING until the gateway callback settles it.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if s.store == nil || s.bonus == nil {
		return CreateResult{}, fmt.Errorf("purchase service dependencies are not configured")
	}

	wallet := strings.ToLower(strings.TrimSpace(in.WalletAddress))
	if !walletAddressPattern.MatchString(wallet) {
		return CreateResult{}, fmt.Errorf("%w: malformed wallet address", ErrValidation)
	}
	if in.AmountCents < s.cfg.MinPurchaseCents || in.AmountCents > s.cfg.MaxPurchaseCents {
		return CreateResult{}, fmt.Errorf("%w: amount outside purchase bounds", ErrValidation)
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return CreateResult{}, fmt.Errorf("%w: malformed email", ErrValidation)
		}
	}
	method := enums.PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	if method != enums.PaymentMethodCard && method != enums.PaymentMethodCrypto {
		return CreateResult{}, fmt.Errorf("%w: unsupported payment method", ErrValidation)
	}

	gw, err := s.gateways.Resolve(in.Gateway)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: unsupported payment gateway", ErrValidation)
	}

	if s.cfg.MultiPurchase {
		committed, err := s.store.SumNonFailedCents(ctx, wallet)
		if err != nil {
			return CreateResult{}, err
		}
		if committed+in.AmountCents > s.cfg.MaxPurchaseCents {
			return CreateResult{}, fmt.Errorf("%w: cumulative purchase cap exceeded", ErrValidation)
		}
	}

	fraudInput := fraudsvc.Input{
		WalletAddress: wallet,
		IP:            in.IP,
		UserAgent:     in.UserAgent,
		AmountCents:   in.AmountCents,
	}
	assessment := s.fraud.Assess(ctx, fraudInput)
	if assessment.Outcome == fraudsvc.OutcomeReject {
		s.logger.Warn("purchase rejected by fraud policy",
			zap.String("wallet", wallet),
			zap.Int("score", assessment.Score),
			zap.Strings("reasons", assessment.Reasons),
		)
		return CreateResult{}, ErrFraudRejected
	}

	quote, err := s.bonus.Quote(in.AmountCents, in.FlatBonus)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	record, err := s.store.Create(ctx, pgrepo.CreatePurchaseInput{
		WalletAddress:        wallet,
		PaymentMethod:        string(method),
		Gateway:              gw.Name(),
		AmountCents:          in.AmountCents,
		BaseTokens:           quote.BaseTokens,
		BonusBps:             quote.BonusBps,
		BonusTokens:          quote.BonusTokens,
		TotalTokens:          quote.TotalTokens,
		RequiresVerification: assessment.Outcome == fraudsvc.OutcomeVerify,
		Email:                in.Email,
	})
	if err != nil {
		if errors.Is(err, pgrepo.ErrWalletHasActivePurchase) {
			return CreateResult{}, ErrDuplicatePurchase
		}
		return CreateResult{}, err
	}

	charge, err := gw.CreateCharge(ctx, gateway.ChargeInput{
		PurchaseID:  record.ID,
		AmountCents: in.AmountCents,
		Currency:    s.cfg.Currency,
		Email:       in.Email,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create gateway charge: %w", err)
	}
	if err := s.store.AttachExternalReference(ctx, record.ID, charge.ExternalReference); err != nil {
		return CreateResult{}, err
	}

	token, expiresAt, err := s.handles.Issue(record.ID, wallet, gw.Name())
	if err != nil {
		return CreateResult{}, err
	}

	s.fraud.RecordAccepted(ctx, fraudInput)

	return CreateResult{
		PurchaseID:           record.ID,
		BaseTokens:           quote.BaseTokens,
		BonusTokens:          quote.BonusTokens,
		TotalTokens:          quote.TotalTokens,
		PaymentURL:           charge.PaymentURL,
		PaymentToken:         token,
		ExpiresAt:            expiresAt,
		RequiresVerification: assessment.Outcome == fraudsvc.OutcomeVerify,
	}, nil
}

// PaymentStatus resolves a payment handle back to its purchase so the
// gateway return page can show whether the payment settled. An expired or
// tampered handle is a validation failure, not a lookup miss.
func (s *Service) PaymentStatus(ctx context.Context, token string) (PaymentStatus, error) {
	if s.store == nil || s.handles == nil {
		return PaymentStatus{}, fmt.Errorf("purchase service dependencies are not configured")
	}

	purchaseID, err := s.handles.Parse(token)
	if err != nil {
		return PaymentStatus{}, fmt.Errorf("%w: invalid payment handle", ErrValidation)
	}

	record, err := s.store.FindByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return PaymentStatus{}, ErrPurchaseNotFound
		}
		return PaymentStatus{}, err
	}

	return PaymentStatus{
		PurchaseID:  record.ID,
		Status:      record.Status,
		AmountCents: record.AmountCents,
		TotalTokens: record.TotalTokens,
		CompletedAt: record.CompletedAt,
	}, nil
}

// History returns a wallet's purchases with their derived vesting state and
// the milestone timeline of the newest completed purchase.
func (s *Service) History(ctx context.Context, walletAddress string) (History, error) {
	wallet := strings.ToLower(strings.TrimSpace(walletAddress))
	if !walletAddressPattern.MatchString(wallet) {
		return History{}, fmt.Errorf("%w: malformed wallet address", ErrValidation)
	}

	records, err := s.store.ListByWallet(ctx, wallet)
	if err != nil {
		return History{}, err
	}

	now := s.now().UTC()
	history := History{Purchases: records}
	for _, record := range records {
		if record.Status != enums.PurchaseStatusCompleted || record.CompletedAt == nil {
			continue
		}

		unlock, err := s.schedule.Unlocked(*record.CompletedAt, now, record.TotalTokens)
		if err != nil {
			return History{}, err
		}
		immediate, vested, err := s.schedule.Split(record.TotalTokens)
		if err != nil {
			return History{}, err
		}

		claimable := unlock.UnlockedTokens - record.ClaimedTokens
		if claimable < 0 {
			claimable = 0
		}

		history.Vesting = append(history.Vesting, VestingState{
			PurchaseID:      record.ID,
			TotalTokens:     record.TotalTokens,
			ImmediateTokens: immediate,
			VestedTokens:    vested,
			ClaimedTokens:   record.ClaimedTokens,
			UnlockedTokens:  unlock.UnlockedTokens,
			ClaimableTokens: claimable,
			ProgressBps:     unlock.ProgressBps,
			InCliff:         unlock.InCliff,
		})
		history.TotalClaimable += claimable

		if history.Milestones == nil {
			milestones, err := s.schedule.Milestones(*record.CompletedAt, record.TotalTokens)
			if err != nil {
				return History{}, err
			}
			history.Milestones = milestones
		}
	}

	return history, nil
}
