package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"
)

func signSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestColexpayVerifySignature(t *testing.T) {
	g := NewColexpay("https://api.colexpay.test", "key", "ipn-secret")
	body := []byte(`{"invoice_id":"inv-1","order_id":"p-1","status":"paid","amount_minor":100000}`)

	header := http.Header{}
	header.Set(colexpaySignatureHeader, signSHA256("ipn-secret", body))
	if err := g.VerifySignature(header, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	header.Set(colexpaySignatureHeader, signSHA256("wrong-secret", body))
	if err := g.VerifySignature(header, body); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	if err := g.VerifySignature(http.Header{}, body); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("missing header must be rejected, got %v", err)
	}
}

func TestColexpayParseEvent(t *testing.T) {
	g := NewColexpay("https://api.colexpay.test", "key", "secret")

	evt, err := g.ParseEvent([]byte(`{"invoice_id":"inv-1","order_id":"p-1","status":"PAID","amount_minor":100000}`))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if evt.ExternalReference != "inv-1" || evt.PurchaseID != "p-1" {
		t.Fatalf("unexpected identifiers: %+v", evt)
	}
	if evt.RawStatus != "paid" {
		t.Fatalf("status must be normalized, got %q", evt.RawStatus)
	}

	if _, err := g.ParseEvent([]byte(`{"status":"paid"}`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
	if _, err := g.ParseEvent([]byte(`not json`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for garbage, got %v", err)
	}
}

func TestOpenpaysVerifySignatureUsesSortedKeys(t *testing.T) {
	g := NewOpenpays("https://api.openpays.test", "key", "ipn-secret")

	// Body with keys deliberately out of order: the signature is computed
	// over the sorted-key canonical form.
	body := []byte(`{"payment_status":"finished","payment_id":"pay-9","external_id":"p-2","amount_minor":50000}`)
	canonical, err := canonicalJSON(body)
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}

	mac := hmac.New(sha512.New, []byte("ipn-secret"))
	mac.Write(canonical)
	sig := hex.EncodeToString(mac.Sum(nil))

	header := http.Header{}
	header.Set(openpaysSignatureHeader, sig)
	if err := g.VerifySignature(header, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	// Signature over the raw (unsorted) body must not verify.
	rawMac := hmac.New(sha512.New, []byte("ipn-secret"))
	rawMac.Write(body)
	header.Set(openpaysSignatureHeader, hex.EncodeToString(rawMac.Sum(nil)))
	if err := g.VerifySignature(header, body); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for raw-body signature, got %v", err)
	}
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(
		NewColexpay("https://api.colexpay.test", "k", "s"),
		NewOpenpays("https://api.openpays.test", "k", "s"),
	)

	if _, err := registry.Resolve("Colexpay"); err != nil {
		t.Fatalf("resolve is case-insensitive: %v", err)
	}
	if _, err := registry.Resolve("openpays"); err != nil {
		t.Fatalf("resolve openpays: %v", err)
	}
	if _, err := registry.Resolve("paypal"); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("expected ErrUnknownGateway, got %v", err)
	}
}
