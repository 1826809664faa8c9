package dto

type WebhookAckResponse struct {
	OK         bool   `json:"ok"`
	PurchaseID string `json:"purchase_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Idempotent bool   `json:"idempotent"`
}
