package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	claimsvc "github.com/aiplace-art/cry-sub006/internal/services/claims"
	purchasesvc "github.com/aiplace-art/cry-sub006/internal/services/purchases"
	webhooksvc "github.com/aiplace-art/cry-sub006/internal/services/webhooks"
	"github.com/aiplace-art/cry-sub006/internal/transport/http/handlers"
)

type Dependencies struct {
	PurchaseService *purchasesvc.Service
	ClaimService    *claimsvc.Service
	WebhookService  *webhooksvc.Service
	Logger          *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	purchaseHandler := handlers.NewPurchaseHandler(deps.PurchaseService)
	claimHandler := handlers.NewClaimHandler(deps.ClaimService)
	webhookHandler := handlers.NewWebhookHandler(deps.WebhookService)

	r.Get("/healthz", healthHandler.Get)

	r.Post("/purchase", purchaseHandler.Create)
	r.Get("/purchase/{token}", purchaseHandler.Status)
	r.Get("/purchases/{wallet}", purchaseHandler.History)
	r.Post("/claim", claimHandler.Create)
	r.Get("/claims/{wallet}", claimHandler.History)
	r.Post("/webhook/{gateway}", webhookHandler.Handle)
}
