package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aiplace-art/cry-sub006/internal/domain/enums"
	"github.com/aiplace-art/cry-sub006/internal/infra/gateway"
	pgrepo "github.com/aiplace-art/cry-sub006/internal/repo/postgres"
	webhooksvc "github.com/aiplace-art/cry-sub006/internal/services/webhooks"
)

const ipnSecret = "test-ipn-secret"

type webhookPurchaseStoreStub struct {
	record      pgrepo.PurchaseRecord
	transitions int
}

func (s *webhookPurchaseStoreStub) FindByID(ctx context.Context, purchaseID string) (pgrepo.PurchaseRecord, error) {
	if purchaseID != s.record.ID {
		return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
	}
	return s.record, nil
}

func (s *webhookPurchaseStoreStub) FindByExternalReference(ctx context.Context, gw, reference string) (pgrepo.PurchaseRecord, error) {
	if s.record.ExternalReference == nil || *s.record.ExternalReference != reference {
		return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
	}
	return s.record, nil
}

func (s *webhookPurchaseStoreStub) Transition(ctx context.Context, purchaseID string, to enums.PurchaseStatus, now time.Time) (pgrepo.PurchaseRecord, bool, error) {
	if s.record.Status.Terminal() {
		return s.record, false, nil
	}
	s.record.Status = to
	s.transitions++
	return s.record, true, nil
}

type webhookLedgerStub struct {
	seen map[string]bool
}

func (l *webhookLedgerStub) Consume(ctx context.Context, gw, reference string) (bool, error) {
	key := gw + ":" + reference
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func (l *webhookLedgerStub) Release(ctx context.Context, gw, reference string) error {
	delete(l.seen, gw+":"+reference)
	return nil
}

func signColexpay(body []byte) string {
	mac := hmac.New(sha256.New, []byte(ipnSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRouter(store *webhookPurchaseStoreStub) chi.Router {
	registry := gateway.NewRegistry(gateway.NewColexpay("https://colexpay.test", "key", ipnSecret))
	svc := webhooksvc.NewService(registry, store, &webhookLedgerStub{seen: map[string]bool{}}, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Post("/webhook/{gateway}", NewWebhookHandler(svc).Handle)
	return r
}

func postWebhook(t *testing.T, router chi.Router, path string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Colexpay-Signature", signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandlerSignedCompletion(t *testing.T) {
	ref := "inv-77"
	store := &webhookPurchaseStoreStub{record: pgrepo.PurchaseRecord{
		ID:                "p-1",
		WalletAddress:     "0x00112233445566778899aabbccddeeff00112233",
		Gateway:           "colexpay",
		Status:            enums.PurchaseStatusPending,
		ExternalReference: &ref,
	}}
	router := newWebhookRouter(store)

	body := []byte(`{"invoice_id":"inv-77","order_id":"p-1","status":"finished","amount_minor":100000}`)
	rec := postWebhook(t, router, "/webhook/colexpay", body, signColexpay(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var ack struct {
		OK         bool   `json:"ok"`
		Status     string `json:"status"`
		Idempotent bool   `json:"idempotent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.OK || ack.Status != "completed" || ack.Idempotent {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if store.transitions != 1 {
		t.Fatalf("transitions = %d, want 1", store.transitions)
	}
}

func TestWebhookHandlerDuplicateDeliveryAcked(t *testing.T) {
	ref := "inv-77"
	store := &webhookPurchaseStoreStub{record: pgrepo.PurchaseRecord{
		ID:                "p-1",
		Gateway:           "colexpay",
		Status:            enums.PurchaseStatusPending,
		ExternalReference: &ref,
	}}
	router := newWebhookRouter(store)

	body := []byte(`{"invoice_id":"inv-77","order_id":"p-1","status":"finished"}`)
	signature := signColexpay(body)
	if rec := postWebhook(t, router, "/webhook/colexpay", body, signature); rec.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", rec.Code)
	}
	rec := postWebhook(t, router, "/webhook/colexpay", body, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate delivery status = %d, want 200", rec.Code)
	}
	var ack struct {
		Idempotent bool `json:"idempotent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Idempotent {
		t.Fatal("duplicate delivery not flagged idempotent")
	}
	if store.transitions != 1 {
		t.Fatalf("transitions = %d, want 1", store.transitions)
	}
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	store := &webhookPurchaseStoreStub{record: pgrepo.PurchaseRecord{ID: "p-1", Status: enums.PurchaseStatusPending}}
	router := newWebhookRouter(store)

	body := []byte(`{"invoice_id":"inv-77","order_id":"p-1","status":"finished"}`)
	rec := postWebhook(t, router, "/webhook/colexpay", body, "deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if store.transitions != 0 {
		t.Fatal("bad signature touched purchase state")
	}
}

func TestWebhookHandlerUnknownGateway(t *testing.T) {
	router := newWebhookRouter(&webhookPurchaseStoreStub{})

	rec := postWebhook(t, router, "/webhook/nosuchpay", []byte(`{}`), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
