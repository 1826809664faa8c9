package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aiplace-art/cry-sub006/internal/domain/enums"
)

var (
	ErrClaimNotFound  = errors.New("claim not found")
	ErrNothingToClaim = errors.New("nothing to claim")
	ErrNotCompleted   = errors.New("purchase is not completed")
)

// ClaimRepo is the two-phase claim ledger. Reserve locks the wallet,
// increments claimed_tokens and records a pending claim in one transaction;
// Settle and Revert finish or undo the reservation after the disbursement
// call, which runs outside any database transaction.
type ClaimRepo struct {
	pool *pgxpool.Pool
}

type ClaimRecord struct {
	ID            string
	PurchaseID    string
	WalletAddress string
	AmountTokens  int64
	Status        enums.ClaimStatus
	TxHash        *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const claimColumns = `
	id,
	purchase_id,
	wallet_address,
	amount_tokens,
	status,
	tx_hash,
	created_at,
	updated_at`

func NewClaimRepo(pool *pgxpool.Pool) *ClaimRepo {
	return &ClaimRepo{pool: pool}
}

// Reserve computes and reserves the claimable amount for a purchase.
// claimableFn receives the purchase row while it is locked, so two
// concurrent claims for the same wallet serialize on the advisory lock and
// the second caller sees the first caller's reservation already applied.
func (r *ClaimRepo) Reserve(
	ctx context.Context,
	purchaseID string,
	claimableFn func(PurchaseRecord) (int64, error),
) (ClaimRecord, error) {
	if r.pool == nil {
		return ClaimRecord{}, fmt.Errorf("postgres pool is nil")
	}
	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" || claimableFn == nil {
		return ClaimRecord{}, fmt.Errorf("invalid claim reserve payload")
	}

	var claim ClaimRecord
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		purchase, err := lockPurchaseForClaim(txCtx, tx, purchaseID)
		if err != nil {
			return err
		}
		if purchase.Status != enums.PurchaseStatusCompleted {
			return ErrNotCompleted
		}

		amount, err := claimableFn(purchase)
		if err != nil {
			return err
		}
		if amount <= 0 {
			return ErrNothingToClaim
		}

		if _, err := tx.Exec(txCtx, `
UPDATE purchases
SET claimed_tokens = claimed_tokens + $2, updated_at = NOW()
WHERE id = $1
`, purchase.ID, amount); err != nil {
			return fmt.Errorf("reserve claimed tokens: %w", err)
		}

		claim, err = scanClaim(tx.QueryRow(txCtx, `
INSERT INTO claims (
	id,
	purchase_id,
	wallet_address,
	amount_tokens,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
RETURNING`+claimColumns, uuid.NewString(), purchase.ID, purchase.WalletAddress, amount))
		if err != nil {
			return fmt.Errorf("insert pending claim: %w", err)
		}
		return nil
	})
	if err != nil {
		return ClaimRecord{}, err
	}

	return claim, nil
}

// Settle finalizes a pending claim after the disbursement succeeded.
func (r *ClaimRepo) Settle(ctx context.Context, claimID, txHash string) (ClaimRecord, error) {
	if r.pool == nil {
		return ClaimRecord{}, fmt.Errorf("postgres pool is nil")
	}

	claim, err := scanClaim(r.pool.QueryRow(ctx, `
UPDATE claims
SET status = 'settled', tx_hash = $2, updated_at = NOW()
WHERE id = $1
  AND status = 'pending'
RETURNING`+claimColumns, strings.TrimSpace(claimID), strings.TrimSpace(txHash)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClaimRecord{}, ErrClaimNotFound
		}
		return ClaimRecord{}, fmt.Errorf("settle claim: %w", err)
	}
	return claim, nil
}

// Revert rolls a failed disbursement back: the claim is marked failed and
// the reserved amount is returned to the purchase, so the same tokens stay
// claimable on retry.
func (r *ClaimRepo) Revert(ctx context.Context, claimID string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	return WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		claim, err := scanClaim(tx.QueryRow(txCtx, `
SELECT`+claimColumns+`
FROM claims
WHERE id = $1
  AND status = 'pending'
FOR UPDATE
`, strings.TrimSpace(claimID)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrClaimNotFound
			}
			return fmt.Errorf("lock pending claim: %w", err)
		}

		if _, err := tx.Exec(txCtx, `
UPDATE purchases
SET claimed_tokens = claimed_tokens - $2, updated_at = NOW()
WHERE id = $1
`, claim.PurchaseID, claim.AmountTokens); err != nil {
			return fmt.Errorf("return reserved tokens: %w", err)
		}

		if _, err := tx.Exec(txCtx, `
UPDATE claims
SET status = 'failed', updated_at = NOW()
WHERE id = $1
`, claim.ID); err != nil {
			return fmt.Errorf("mark claim failed: %w", err)
		}
		return nil
	})
}

func (r *ClaimRepo) ListByWallet(ctx context.Context, walletAddress string) ([]ClaimRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+claimColumns+`
FROM claims
WHERE wallet_address = $1
ORDER BY created_at DESC
`, strings.ToLower(strings.TrimSpace(walletAddress)))
	if err != nil {
		return nil, fmt.Errorf("list claims by wallet: %w", err)
	}
	defer rows.Close()

	var claims []ClaimRecord
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim row: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim rows: %w", err)
	}

	return claims, nil
}

// lockPurchaseForClaim serializes claims per wallet: the advisory lock keys
// on the wallet, not the purchase, so multi-purchase deployments still get
// wallet-level exclusivity. The row lock then pins the purchase itself.
func lockPurchaseForClaim(ctx context.Context, tx pgx.Tx, purchaseID string) (PurchaseRecord, error) {
	var wallet string
	if err := tx.QueryRow(ctx, `
SELECT wallet_address FROM purchases WHERE id = $1
`, purchaseID).Scan(&wallet); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("resolve purchase wallet: %w", err)
	}

	if _, err := tx.Exec(ctx, `
SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
`, wallet); err != nil {
		return PurchaseRecord{}, fmt.Errorf("acquire wallet claim lock: %w", err)
	}

	purchase, err := scanPurchase(tx.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE id = $1
FOR UPDATE
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("lock purchase for claim: %w", err)
	}
	return purchase, nil
}

func scanClaim(row pgx.Row) (ClaimRecord, error) {
	var (
		claim  ClaimRecord
		status string
	)
	if err := row.Scan(
		&claim.ID,
		&claim.PurchaseID,
		&claim.WalletAddress,
		&claim.AmountTokens,
		&status,
		&claim.TxHash,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	); err != nil {
		return ClaimRecord{}, err
	}
	claim.Status = enums.ClaimStatus(status)
	return claim, nil
}
