package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const openpaysSignatureHeader = "X-Openpays-Sig"

// Openpays is the crypto-payment processor client. Its callbacks are signed
// with HMAC-SHA512 over the JSON body re-serialized with sorted keys, which
// is the scheme the processor documents (the raw body is not canonical on
// their side).
type Openpays struct {
	baseURL    string
	apiKey     string
	ipnSecret  string
	httpClient *http.Client
}

func NewOpenpays(baseURL, apiKey, ipnSecret string) *Openpays {
	return &Openpays{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		ipnSecret: ipnSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (g *Openpays) Name() string { return "openpays" }

type openpaysChargeRequest struct {
	ExternalID    string `json:"external_id"`
	PriceAmount   string `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
}

type openpaysChargeResponse struct {
	PaymentID  string `json:"payment_id"`
	InvoiceURL string `json:"invoice_url"`
}

func (g *Openpays) CreateCharge(ctx context.Context, in ChargeInput) (Charge, error) {
	payload, err := json.Marshal(openpaysChargeRequest{
		ExternalID:    in.PurchaseID,
		PriceAmount:   fmt.Sprintf("%d.%02d", in.AmountCents/100, in.AmountCents%100),
		PriceCurrency: strings.ToLower(in.Currency),
	})
	if err != nil {
		return Charge{}, fmt.Errorf("marshal openpays charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment", bytes.NewReader(payload))
	if err != nil {
		return Charge{}, fmt.Errorf("create openpays request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Charge{}, fmt.Errorf("openpays charge request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Charge{}, fmt.Errorf("read openpays response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Charge{}, fmt.Errorf("openpays charge failed with status %d", resp.StatusCode)
	}

	var out openpaysChargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Charge{}, fmt.Errorf("decode openpays response: %w", err)
	}
	if out.PaymentID == "" || out.InvoiceURL == "" {
		return Charge{}, fmt.Errorf("openpays response missing payment id or invoice url")
	}

	return Charge{ExternalReference: out.PaymentID, PaymentURL: out.InvoiceURL}, nil
}

func (g *Openpays) VerifySignature(header http.Header, body []byte) error {
	provided := strings.TrimSpace(header.Get(openpaysSignatureHeader))
	if provided == "" {
		return ErrSignatureInvalid
	}

	canonical, err := canonicalJSON(body)
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha512.New, []byte(g.ipnSecret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return ErrSignatureInvalid
	}
	return nil
}

type openpaysEvent struct {
	PaymentID     string `json:"payment_id"`
	ExternalID    string `json:"external_id"`
	PaymentStatus string `json:"payment_status"`
	AmountMinor   int64  `json:"amount_minor"`
}

func (g *Openpays) ParseEvent(body []byte) (Event, error) {
	var evt openpaysEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.PaymentID == "" || evt.ExternalID == "" {
		return Event{}, fmt.Errorf("%w: missing payment or external id", ErrMalformedEvent)
	}

	return Event{
		ExternalReference: evt.PaymentID,
		PurchaseID:        evt.ExternalID,
		RawStatus:         strings.ToLower(strings.TrimSpace(evt.PaymentStatus)),
		AmountCents:       evt.AmountMinor,
	}, nil
}

// canonicalJSON re-serializes a JSON object with lexicographically sorted
// keys, matching the processor's signing canonicalization.
func canonicalJSON(body []byte) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(payload[k])
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
