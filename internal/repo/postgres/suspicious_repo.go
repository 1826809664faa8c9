package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SuspiciousActivityRepo is the append-only log of fraud-rejected attempts.
type SuspiciousActivityRepo struct {
	pool *pgxpool.Pool
}

func NewSuspiciousActivityRepo(pool *pgxpool.Pool) *SuspiciousActivityRepo {
	return &SuspiciousActivityRepo{pool: pool}
}

func (r *SuspiciousActivityRepo) Append(ctx context.Context, walletAddress, ip string, score int, reasons []string, amountCents int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if walletAddress == "" {
		return fmt.Errorf("wallet address is required")
	}

	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal suspicious reasons: %w", err)
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO suspicious_activity (
	wallet_address,
	ip,
	score,
	reasons,
	amount_cents,
	created_at
) VALUES ($1, $2, $3, $4::jsonb, $5, NOW())
`, walletAddress, strings.TrimSpace(ip), score, string(reasonsJSON), amountCents); err != nil {
		return fmt.Errorf("append suspicious activity: %w", err)
	}
	return nil
}
