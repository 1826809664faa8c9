package dto

import "time"

type PurchaseCreateRequest struct {
	WalletAddress string `json:"wallet_address"`
	PaymentMethod string `json:"payment_method"`
	Gateway       string `json:"gateway"`
	AmountCents   int64  `json:"amount_cents"`
	Email         string `json:"email,omitempty"`
	// A referral code opts the purchase into the flat referral bonus
	// instead of the amount tier table.
	ReferralCode string `json:"referral_code,omitempty"`
}

type PurchaseCreateResponse struct {
	PurchaseID           string    `json:"purchase_id"`
	BaseTokens           int64     `json:"base_tokens"`
	BonusTokens          int64     `json:"bonus_tokens"`
	TotalTokens          int64     `json:"total_tokens"`
	PaymentURL           string    `json:"payment_url"`
	PaymentToken         string    `json:"payment_token"`
	ExpiresAt            time.Time `json:"expires_at"`
	RequiresVerification bool      `json:"requires_verification"`
}

type PaymentStatusResponse struct {
	PurchaseID  string     `json:"purchase_id"`
	Status      string     `json:"status"`
	AmountCents int64      `json:"amount_cents"`
	TotalTokens int64      `json:"total_tokens"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type PurchaseResponse struct {
	PurchaseID    string     `json:"purchase_id"`
	WalletAddress string     `json:"wallet_address"`
	PaymentMethod string     `json:"payment_method"`
	Gateway       string     `json:"gateway"`
	AmountCents   int64      `json:"amount_cents"`
	BaseTokens    int64      `json:"base_tokens"`
	BonusBps      int64      `json:"bonus_bps"`
	BonusTokens   int64      `json:"bonus_tokens"`
	TotalTokens   int64      `json:"total_tokens"`
	ClaimedTokens int64      `json:"claimed_tokens"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type VestingStateResponse struct {
	PurchaseID      string `json:"purchase_id"`
	TotalTokens     int64  `json:"total_tokens"`
	ImmediateTokens int64  `json:"immediate_tokens"`
	VestedTokens    int64  `json:"vested_tokens"`
	ClaimedTokens   int64  `json:"claimed_tokens"`
	UnlockedTokens  int64  `json:"unlocked_tokens"`
	ClaimableTokens int64  `json:"claimable_tokens"`
	ProgressBps     int64  `json:"progress_bps"`
	InCliff         bool   `json:"in_cliff"`
}

type MilestoneResponse struct {
	DayOffset      int       `json:"day_offset"`
	At             time.Time `json:"at"`
	UnlockedTokens int64     `json:"unlocked_tokens"`
	PercentBps     int64     `json:"percent_bps"`
}

type PurchaseHistoryResponse struct {
	Purchases      []PurchaseResponse     `json:"purchases"`
	Vesting        []VestingStateResponse `json:"vesting"`
	TotalClaimable int64                  `json:"total_claimable"`
	Milestones     []MilestoneResponse    `json:"milestones,omitempty"`
}
