package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/domain/enums"
	"github.com/aiplace-art/cry-sub006/internal/domain/tokenomics"
	"github.com/aiplace-art/cry-sub006/internal/infra/gateway"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
	fraudsvc "github.com/aiplace-art/cry-sub006/internal/services/fraud"
	purchasesvc "github.com/aiplace-art/cry-sub006/internal/services/purchases"
)

type purchaseStoreStub struct {
	createErr error
}

func (s *purchaseStoreStub) Create(ctx context.Context, in pgrepo.CreatePurchaseInput) (pgrepo.PurchaseRecord, error) {
	if s.createErr != nil {
		return pgrepo.PurchaseRecord{}, s.createErr
	}
	return pgrepo.PurchaseRecord{
		ID:            "purchase-1",
		WalletAddress: in.WalletAddress,
		Gateway:       in.Gateway,
		AmountCents:   in.AmountCents,
		TotalTokens:   in.TotalTokens,
		Status:        enums.PurchaseStatusPending,
	}, nil
}

func (s *purchaseStoreStub) FindByID(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, error) {
	if purchaseID != "purchase-1" {
		return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
	}
	return pgrepo.PurchaseRecord{
		ID:          "purchase-1",
		Status:      enums.PurchaseStatusPending,
		AmountCents: 100_000,
	}, nil
}

func (s *purchaseStoreStub) ListByWallet(ctx context.Context, walletAddress string) ([]pgrepo.PurchaseRecord, error) {
	return nil, nil
}

func (s *purchaseStoreStub) SumNonFailedCents(ctx context.Context, walletAddress string) (int64, error) {
	return 0, nil
}

func (s *purchaseStoreStub) AttachExternalReference(ctx context.Context, purchaseID, externalReference string) error {
	return nil
}

type acceptingFraudStub struct{}

func (acceptingFraudStub) Assess(ctx context.Context, in fraudsvc.Input) fraudsvc.Assessment {
	return fraudsvc.Assessment{Outcome: fraudsvc.OutcomeAccept}
}

func (acceptingFraudStub) RecordAccepted(ctx context.Context, in fraudsvc.Input) {}

type chargeGateway struct{}

func (chargeGateway) Name() string { return "colexpay" }

func (chargeGateway) CreateCharge(ctx context.Context, in gateway.ChargeInput) (gateway.Charge, error) {
	return gateway.Charge{ExternalReference: "inv-1", PaymentURL: "https://pay.example/inv-1"}, nil
}

func (chargeGateway) VerifySignature(header http.Header, body []byte) error { return nil }

func (chargeGateway) ParseEvent(body []byte) (gateway.Event, error) {
	return gateway.Event{}, errors.New("not used")
}

func newPurchaseRouter(t *testing.T, store *purchaseStoreStub) chi.Router {
	t.Helper()
	bonus, err := tokenomics.NewBonusCalculator(nil, 1000, 80_000)
	if err != nil {
		t.Fatalf("NewBonusCalculator: %v", err)
	}
	schedule, err := tokenomics.NewSchedule(2000, 90*24*time.Hour, 540*24*time.Hour)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	svc := purchasesvc.NewService(
		store,
		acceptingFraudStub{},
		gateway.NewRegistry(chargeGateway{}),
		purchasesvc.NewHandleManager("secret", time.Hour),
		bonus,
		schedule,
		purchasesvc.Config{MinPurchaseCents: 1_000, MaxPurchaseCents: 5_000_000, Currency: "USD"},
		zap.NewNop(),
	)

	handler := NewPurchaseHandler(svc)
	r := chi.NewRouter()
	r.Post("/purchase", handler.Create)
	r.Get("/purchase/{token}", handler.Status)
	r.Get("/purchases/{wallet}", handler.History)
	return r
}

func TestPurchaseHandlerCreate(t *testing.T) {
	router := newPurchaseRouter(t, &purchaseStoreStub{})

	body := []byte(`{
		"wallet_address": "0x00112233445566778899aabbccddeeff00112233",
		"payment_method": "card",
		"gateway": "colexpay",
		"amount_cents": 100000,
		"referral_code": "FRIEND10"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		PurchaseID   string `json:"purchase_id"`
		TotalTokens  int64  `json:"total_tokens"`
		PaymentURL   string `json:"payment_url"`
		PaymentToken string `json:"payment_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PurchaseID == "" || resp.PaymentURL == "" || resp.PaymentToken == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	if resp.TotalTokens != 13_750_000*1_000_000 {
		t.Fatalf("total tokens = %d", resp.TotalTokens)
	}
}

func TestPurchaseHandlerCreateValidation(t *testing.T) {
	router := newPurchaseRouter(t, &purchaseStoreStub{})

	for name, body := range map[string]string{
		"bad json":      `{`,
		"bad wallet":    `{"wallet_address":"nope","payment_method":"card","gateway":"colexpay","amount_cents":100000}`,
		"below minimum": `{"wallet_address":"0x00112233445566778899aabbccddeeff00112233","payment_method":"card","gateway":"colexpay","amount_cents":1}`,
		"unknown field": `{"wallet_address":"0x00112233445566778899aabbccddeeff00112233","payment_method":"card","gateway":"colexpay","amount_cents":100000,"bogus":1}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/purchase", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestPurchaseHandlerCreateDuplicate(t *testing.T) {
	router := newPurchaseRouter(t, &purchaseStoreStub{createErr: pgrepo.ErrWalletHasActivePurchase})

	body := []byte(`{"wallet_address":"0x00112233445566778899aabbccddeeff00112233","payment_method":"card","gateway":"colexpay","amount_cents":100000}`)
	req := httptest.NewRequest(http.MethodPost, "/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != "DUPLICATE_PURCHASE" {
		t.Fatalf("error code = %q, want DUPLICATE_PURCHASE", apiErr.Code)
	}
}

func TestPurchaseHandlerPaymentStatus(t *testing.T) {
	router := newPurchaseRouter(t, &purchaseStoreStub{})

	body := []byte(`{"wallet_address":"0x00112233445566778899aabbccddeeff00112233","payment_method":"card","gateway":"colexpay","amount_cents":100000}`)
	req := httptest.NewRequest(http.MethodPost, "/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		PaymentToken string `json:"payment_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/purchase/"+created.PaymentToken, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status lookup = %d, body %s", rec.Code, rec.Body.String())
	}
	var status struct {
		PurchaseID string `json:"purchase_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.PurchaseID != "purchase-1" || status.Status != "pending" {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	req = httptest.NewRequest(http.MethodGet, "/purchase/garbage-token", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage token status = %d, want 400", rec.Code)
	}
}

func TestPurchaseHandlerHistoryBadWallet(t *testing.T) {
	router := newPurchaseRouter(t, &purchaseStoreStub{})

	req := httptest.NewRequest(http.MethodGet, "/purchases/bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
