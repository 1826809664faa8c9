package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/domain/enums"
	"github.com/aiplace-art/cry-sub006/internal/infra/gateway"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrUnknownGateway   = errors.New("unknown gateway")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrPurchaseNotFound = errors.New("purchase not found")
)

type PurchaseStore interface {
	FindByID(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, error)
	FindByExternalReference(ctx context.Context, gateway, externalReference string) (pgrepo.PurchaseRecord, error)
	Transition(ctx context.Context, purchaseID string, to enums.PurchaseStatus, now time.Time) (pgrepo.PurchaseRecord, bool, error)
}

// IdempotencyLedger dedups event deliveries. Release undoes a consume when
// the transition could not be applied for an infrastructure reason, so the
// gateway's retry of that delivery is not swallowed.
type IdempotencyLedger interface {
	Consume(ctx context.Context, gateway, reference string) (bool, error)
	Release(ctx context.Context, gateway, reference string) error
}

type Notifier interface {
	PurchaseCompleted(ctx context.Context, purchaseID, walletAddress string, amountCents, totalTokens int64)
	PurchaseFailed(ctx context.Context, purchaseID, walletAddress, reason string)
}

type Service struct {
	gateways  *gateway.Registry
	purchases PurchaseStore
	ledger    IdempotencyLedger
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

type Result struct {
	PurchaseID       string
	Status           enums.PurchaseStatus
	AlreadyProcessed bool
}

func NewService(gateways *gateway.Registry, purchases PurchaseStore, ledger IdempotencyLedger, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateways:  gateways,
		purchases: purchases,
		ledger:    ledger,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Process reconciles one inbound gateway event. Gateways retry on anything
// but a success response, so duplicate and replayed deliveries are routine:
// the idempotency ledger drops event-level duplicates, and the monotonic
// purchase transition absorbs business-level replays on top of that.
func (s *Service) Process(ctx context.Context, gatewayName string, header http.Header, body []byte) (Result, error) {
	if s.purchases == nil || s.ledger == nil {
		return Result{}, fmt.Errorf("webhook service dependencies are not configured")
	}

	gw, err := s.gateways.Resolve(gatewayName)
	if err != nil {
		return Result{}, ErrUnknownGateway
	}

	if err := gw.VerifySignature(header, body); err != nil {
		s.logger.Warn("webhook signature rejected", zap.String("gateway", gw.Name()))
		return Result{}, ErrSignatureInvalid
	}

	event, err := gw.ParseEvent(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	target, terminal := mapGatewayStatus(event.RawStatus)
	if !terminal {
		// Intermediate statuses (waiting, confirming, ...) are acknowledged
		// without consuming the reference: the terminal event for the same
		// payment carries the same reference and must still get through.
		return Result{PurchaseID: event.PurchaseID, Status: enums.PurchaseStatusPending}, nil
	}

	firstSeen, err := s.ledger.Consume(ctx, gw.Name(), event.ExternalReference)
	if err != nil {
		return Result{}, fmt.Errorf("consume event reference: %w", err)
	}
	if !firstSeen {
		record, err := s.lookupPurchase(ctx, gw.Name(), event)
		if err != nil {
			return Result{AlreadyProcessed: true}, nil
		}
		return Result{PurchaseID: record.ID, Status: record.Status, AlreadyProcessed: true}, nil
	}

	record, err := s.lookupPurchase(ctx, gw.Name(), event)
	if err != nil {
		if errors.Is(err, ErrPurchaseNotFound) {
			return Result{}, err
		}
		s.release(ctx, gw.Name(), event.ExternalReference)
		return Result{}, err
	}

	updated, changed, err := s.purchases.Transition(ctx, record.ID, target, s.now().UTC())
	if err != nil {
		s.release(ctx, gw.Name(), event.ExternalReference)
		return Result{}, err
	}

	if changed && s.notifier != nil {
		switch updated.Status {
		case enums.PurchaseStatusCompleted:
			s.notifier.PurchaseCompleted(ctx, updated.ID, updated.WalletAddress, updated.AmountCents, updated.TotalTokens)
		case enums.PurchaseStatusFailed:
			s.notifier.PurchaseFailed(ctx, updated.ID, updated.WalletAddress, event.RawStatus)
		}
	}

	return Result{
		PurchaseID:       updated.ID,
		Status:           updated.Status,
		AlreadyProcessed: !changed,
	}, nil
}

func (s *Service) lookupPurchase(ctx context.Context, gatewayName string, event gateway.Event) (pgrepo.PurchaseRecord, error) {
	if event.PurchaseID != "" {
		record, err := s.purchases.FindByID(ctx, event.PurchaseID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return pgrepo.PurchaseRecord{}, err
		}
	}

	record, err := s.purchases.FindByExternalReference(ctx, gatewayName, event.ExternalReference)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return pgrepo.PurchaseRecord{}, ErrPurchaseNotFound
		}
		return pgrepo.PurchaseRecord{}, err
	}
	return record, nil
}

func (s *Service) release(ctx context.Context, gatewayName, reference string) {
	if err := s.ledger.Release(ctx, gatewayName, reference); err != nil {
		s.logger.Error("release consumed event reference",
			zap.String("gateway", gatewayName),
			zap.String("reference", reference),
			zap.Error(err),
		)
	}
}

// mapGatewayStatus folds each processor's status vocabulary onto the
// purchase state machine.
func mapGatewayStatus(raw string) (enums.PurchaseStatus, bool) {
	switch raw {
	case "confirmed", "finished", "paid", "success":
		return enums.PurchaseStatusCompleted, true
	case "failed", "expired", "canceled", "cancelled", "refunded":
		return enums.PurchaseStatusFailed, true
	default:
		return enums.PurchaseStatusPending, false
	}
}
