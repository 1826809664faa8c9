// Package gateway holds the payment-processor clients: charge creation,
// callback signature verification, and event parsing. Each processor has
// its own signature scheme and status vocabulary; the webhook service works
// only through the Gateway interface and the registry.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// ChargeInput describes the payment the gateway should collect.
type ChargeInput struct {
	PurchaseID  string
	AmountCents int64
	Currency    string
	Email       string
}

// Charge is the gateway's handle for an initiated payment.
type Charge struct {
	ExternalReference string
	PaymentURL        string
}

// Event is a parsed, signature-verified gateway callback.
type Event struct {
	ExternalReference string
	PurchaseID        string
	RawStatus         string
	AmountCents       int64
}

type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, in ChargeInput) (Charge, error)
	// VerifySignature checks the callback authenticity against the raw
	// request body. Must be called before ParseEvent; a failure means the
	// payload never touches any state.
	VerifySignature(header http.Header, body []byte) error
	ParseEvent(body []byte) (Event, error)
}

// Registry resolves gateways by name for routing webhook requests.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	m := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		if g == nil {
			continue
		}
		m[strings.ToLower(g.Name())] = g
	}
	return &Registry{gateways: m}
}

func (r *Registry) Resolve(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrUnknownGateway
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}
