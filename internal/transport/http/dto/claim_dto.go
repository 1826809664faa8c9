package dto

import "time"

type ClaimCreateRequest struct {
	PurchaseID    string `json:"purchase_id"`
	WalletAddress string `json:"wallet_address"`
}

type ClaimCreateResponse struct {
	ClaimID       string `json:"claim_id"`
	TokensClaimed int64  `json:"tokens_claimed"`
	TxHash        string `json:"tx_hash"`
}

type ClaimResponse struct {
	ClaimID       string    `json:"claim_id"`
	PurchaseID    string    `json:"purchase_id"`
	WalletAddress string    `json:"wallet_address"`
	AmountTokens  int64     `json:"amount_tokens"`
	Status        string    `json:"status"`
	TxHash        *string   `json:"tx_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ClaimHistoryResponse struct {
	Claims []ClaimResponse `json:"claims"`
}
