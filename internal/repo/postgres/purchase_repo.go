package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aiplace-art/cry-sub006/internal/domain/enums"
)

var (
	ErrPurchaseNotFound          = errors.New("purchase not found")
	ErrWalletHasActivePurchase   = errors.New("wallet already has a non-failed purchase")
	ErrExternalReferenceConflict = errors.New("external reference already attached to another purchase")
)

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

type PurchaseRecord struct {
	ID                   string
	WalletAddress        string
	PaymentMethod        string
	Gateway              string
	AmountCents          int64
	BaseTokens           int64
	BonusBps             int64
	BonusTokens          int64
	TotalTokens          int64
	ClaimedTokens        int64
	Status               enums.PurchaseStatus
	RequiresVerification bool
	ExternalReference    *string
	Email                string
	CreatedAt            time.Time
	CompletedAt          *time.Time
	UpdatedAt            time.Time
}

const purchaseColumns = `
	id,
	wallet_address,
	payment_method,
	gateway,
	amount_cents,
	base_tokens,
	bonus_bps,
	bonus_tokens,
	total_tokens,
	claimed_tokens,
	status,
	requires_verification,
	external_reference,
	email,
	created_at,
	completed_at,
	updated_at`

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

type CreatePurchaseInput struct {
	WalletAddress        string
	PaymentMethod        string
	Gateway              string
	AmountCents          int64
	BaseTokens           int64
	BonusBps             int64
	BonusTokens          int64
	TotalTokens          int64
	RequiresVerification bool
	Email                string
}

// Create inserts a PENDING purchase. Single-purchase deployments install
// the purchases_wallet_live_uq partial unique index (wallet_address WHERE
// status <> 'failed'), which turns a live duplicate into
// ErrWalletHasActivePurchase even when two create requests race.
// Multi-purchase deployments run without that index; the cumulative cap is
// enforced by the service instead.
func (r *PurchaseRepo) Create(ctx context.Context, in CreatePurchaseInput) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	wallet := strings.ToLower(strings.TrimSpace(in.WalletAddress))
	if wallet == "" || in.AmountCents <= 0 || in.TotalTokens <= 0 {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase create payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	id,
	wallet_address,
	payment_method,
	gateway,
	amount_cents,
	base_tokens,
	bonus_bps,
	bonus_tokens,
	total_tokens,
	claimed_tokens,
	status,
	requires_verification,
	email,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 'pending', $10, $11, NOW(), NOW())
RETURNING`+purchaseColumns,
		uuid.NewString(),
		wallet,
		strings.ToLower(strings.TrimSpace(in.PaymentMethod)),
		strings.ToLower(strings.TrimSpace(in.Gateway)),
		in.AmountCents,
		in.BaseTokens,
		in.BonusBps,
		in.BonusTokens,
		in.TotalTokens,
		in.RequiresVerification,
		strings.TrimSpace(in.Email),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PurchaseRecord{}, ErrWalletHasActivePurchase
		}
		return PurchaseRecord{}, fmt.Errorf("create pending purchase: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, purchaseID string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase id")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by id: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) ListByWallet(ctx context.Context, walletAddress string) ([]PurchaseRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	wallet := strings.ToLower(strings.TrimSpace(walletAddress))
	if wallet == "" {
		return nil, fmt.Errorf("wallet address is required")
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE wallet_address = $1
ORDER BY created_at DESC
`, wallet)
	if err != nil {
		return nil, fmt.Errorf("list purchases by wallet: %w", err)
	}
	defer rows.Close()

	var records []PurchaseRecord
	for rows.Next() {
		record, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase rows: %w", err)
	}

	return records, nil
}

// SumNonFailedCents supports the cumulative-cap mode: the total USD a wallet
// has committed across purchases that still count.
func (r *PurchaseRepo) SumNonFailedCents(ctx context.Context, walletAddress string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var sum int64
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount_cents), 0)
FROM purchases
WHERE wallet_address = $1
  AND status <> 'failed'
`, strings.ToLower(strings.TrimSpace(walletAddress))).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum non-failed purchases: %w", err)
	}
	return sum, nil
}

// CountCompletedSince feeds the fraud wallet-velocity signal.
func (r *PurchaseRepo) CountCompletedSince(ctx context.Context, walletAddress string, since time.Time) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM purchases
WHERE wallet_address = $1
  AND status = 'completed'
  AND completed_at >= $2
`, strings.ToLower(strings.TrimSpace(walletAddress)), since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed purchases: %w", err)
	}
	return count, nil
}

// AttachExternalReference binds the gateway charge reference to a purchase
// after charge creation.
func (r *PurchaseRepo) AttachExternalReference(ctx context.Context, purchaseID, externalReference string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return fmt.Errorf("external reference is required")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET external_reference = $2, updated_at = NOW()
WHERE id = $1
`, strings.TrimSpace(purchaseID), externalReference)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExternalReferenceConflict
		}
		return fmt.Errorf("attach external reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (r *PurchaseRepo) FindByExternalReference(ctx context.Context, gateway, externalReference string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	externalReference = strings.TrimSpace(externalReference)
	if gateway == "" || externalReference == "" {
		return PurchaseRecord{}, fmt.Errorf("invalid external reference payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE gateway = $1
  AND external_reference = $2
LIMIT 1
`, gateway, externalReference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by external reference: %w", err)
	}

	return record, nil
}

// Transition applies the single monotonic pending -> completed|failed step.
// The conditional UPDATE only matches PENDING rows; when it matches nothing
// the current row is returned with changed=false, so a transition request
// against an already-terminal purchase is a business-level no-op rather
// than an error.
func (r *PurchaseRepo) Transition(ctx context.Context, purchaseID string, to enums.PurchaseStatus, now time.Time) (PurchaseRecord, bool, error) {
	if r.pool == nil {
		return PurchaseRecord{}, false, fmt.Errorf("postgres pool is nil")
	}
	if !to.Terminal() {
		return PurchaseRecord{}, false, fmt.Errorf("transition target must be terminal, got %q", to)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
UPDATE purchases
SET
	status = $2,
	completed_at = CASE WHEN $2 = 'completed' THEN $3::timestamptz ELSE completed_at END,
	updated_at = NOW()
WHERE id = $1
  AND status = 'pending'
RETURNING`+purchaseColumns, strings.TrimSpace(purchaseID), string(to), now.UTC()))
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("transition purchase: %w", err)
	}

	existing, err := r.FindByID(ctx, purchaseID)
	if err != nil {
		return PurchaseRecord{}, false, err
	}
	return existing, false, nil
}

// SweepExpired fails every PENDING purchase created before the cutoff and
// returns the swept records, freeing the per-wallet uniqueness slot.
func (r *PurchaseRepo) SweepExpired(ctx context.Context, cutoff time.Time) ([]PurchaseRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
UPDATE purchases
SET status = 'failed', updated_at = NOW()
WHERE status = 'pending'
  AND created_at < $1
RETURNING`+purchaseColumns, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("sweep expired purchases: %w", err)
	}
	defer rows.Close()

	var swept []PurchaseRecord
	for rows.Next() {
		record, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swept purchase: %w", err)
		}
		swept = append(swept, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swept purchases: %w", err)
	}

	return swept, nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var (
		record PurchaseRecord
		status string
	)
	if err := row.Scan(
		&record.ID,
		&record.WalletAddress,
		&record.PaymentMethod,
		&record.Gateway,
		&record.AmountCents,
		&record.BaseTokens,
		&record.BonusBps,
		&record.BonusTokens,
		&record.TotalTokens,
		&record.ClaimedTokens,
		&status,
		&record.RequiresVerification,
		&record.ExternalReference,
		&record.Email,
		&record.CreatedAt,
		&record.CompletedAt,
		&record.UpdatedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}
	record.Status = enums.PurchaseStatus(status)
	return record, nil
}
