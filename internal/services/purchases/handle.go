package purchases

import (
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// HandleManager issues the payment-initiation handle: a signed token that
// binds the pending purchase to its payment window. The handle carries its
// own expiry, and the sweeper fails the purchase once the window passes.
type HandleManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type handleClaims struct {
	Wallet  string `json:"wallet"`
	Gateway string `json:"gateway"`
	jwt.RegisteredClaims
}

func NewHandleManager(secret string, ttl time.Duration) *HandleManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HandleManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *HandleManager) TTL() time.Duration { return m.ttl }

func (m *HandleManager) Issue(purchaseID, walletAddress, gateway string) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("handle secret is empty")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return "", time.Time{}, fmt.Errorf("invalid handle payload")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := handleClaims{
		Wallet:  walletAddress,
		Gateway: gateway,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   purchaseID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign payment handle: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse validates a payment handle and returns the purchase id it binds.
func (m *HandleManager) Parse(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrValidation
	}

	claims := &handleClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || token == nil || !token.Valid {
		return "", ErrValidation
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrValidation
	}

	return claims.Subject, nil
}
