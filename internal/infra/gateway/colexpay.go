package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const colexpaySignatureHeader = "X-Colexpay-Signature"

// Colexpay is the card-payment processor client. Callbacks are signed with
// HMAC-SHA256 over the raw request body, hex-encoded.
type Colexpay struct {
	baseURL    string
	apiKey     string
	ipnSecret  string
	httpClient *http.Client
}

func NewColexpay(baseURL, apiKey, ipnSecret string) *Colexpay {
	return &Colexpay{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		ipnSecret: ipnSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *Colexpay) Name() string { return "colexpay" }

type colexpayChargeRequest struct {
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Email       string `json:"email,omitempty"`
}

type colexpayChargeResponse struct {
	InvoiceID  string `json:"invoice_id"`
	PaymentURL string `json:"payment_url"`
}

func (g *Colexpay) CreateCharge(ctx context.Context, in ChargeInput) (Charge, error) {
	payload, err := json.Marshal(colexpayChargeRequest{
		OrderID:     in.PurchaseID,
		AmountMinor: in.AmountCents,
		Currency:    strings.ToUpper(in.Currency),
		Email:       in.Email,
	})
	if err != nil {
		return Charge{}, fmt.Errorf("marshal colexpay charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/invoices", bytes.NewReader(payload))
	if err != nil {
		return Charge{}, fmt.Errorf("create colexpay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Charge{}, fmt.Errorf("colexpay charge request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Charge{}, fmt.Errorf("read colexpay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Charge{}, fmt.Errorf("colexpay charge failed with status %d", resp.StatusCode)
	}

	var out colexpayChargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Charge{}, fmt.Errorf("decode colexpay response: %w", err)
	}
	if out.InvoiceID == "" || out.PaymentURL == "" {
		return Charge{}, fmt.Errorf("colexpay response missing invoice id or payment url")
	}

	return Charge{ExternalReference: out.InvoiceID, PaymentURL: out.PaymentURL}, nil
}

func (g *Colexpay) VerifySignature(header http.Header, body []byte) error {
	provided := strings.TrimSpace(header.Get(colexpaySignatureHeader))
	if provided == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(g.ipnSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return ErrSignatureInvalid
	}
	return nil
}

type colexpayEvent struct {
	InvoiceID   string `json:"invoice_id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
}

func (g *Colexpay) ParseEvent(body []byte) (Event, error) {
	var evt colexpayEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.InvoiceID == "" || evt.OrderID == "" {
		return Event{}, fmt.Errorf("%w: missing invoice or order id", ErrMalformedEvent)
	}

	return Event{
		ExternalReference: evt.InvoiceID,
		PurchaseID:        evt.OrderID,
		RawStatus:         strings.ToLower(strings.TrimSpace(evt.Status)),
		AmountCents:       evt.AmountMinor,
	}, nil
}
