package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	webhooksvc "github.com/aiplace-art/cry-sub006/internal/services/webhooks"
	"github.com/aiplace-art/cry-sub006/internal/transport/http/dto"
	httperrors "github.com/aiplace-art/cry-sub006/internal/transport/http/errors"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhooks *webhooksvc.Service
}

func NewWebhookHandler(webhooks *webhooksvc.Service) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Handle receives a gateway callback. Gateways retry on any non-2xx
// response, so only signature failures and internal errors refuse the
// delivery; everything the service already absorbed is acknowledged.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		writeInternal(w, "WEBHOOKS_SERVICE_UNAVAILABLE", "webhooks service is unavailable")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "unreadable request body")
		return
	}

	result, err := h.webhooks.Process(r.Context(), chi.URLParam(r, "gateway"), r.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, webhooksvc.ErrUnknownGateway):
			writeNotFound(w, "UNKNOWN_GATEWAY", "unknown payment gateway")
		case errors.Is(err, webhooksvc.ErrSignatureInvalid):
			httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
				Code:    "SIGNATURE_INVALID",
				Message: "webhook signature verification failed",
			})
		case errors.Is(err, webhooksvc.ErrMalformedEvent):
			writeBadRequest(w, "MALFORMED_EVENT", "webhook payload could not be parsed")
		case errors.Is(err, webhooksvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "no purchase matches the event reference")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process webhook")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookAckResponse{
		OK:         true,
		PurchaseID: result.PurchaseID,
		Status:     string(result.Status),
		Idempotent: result.AlreadyProcessed,
	})
}
