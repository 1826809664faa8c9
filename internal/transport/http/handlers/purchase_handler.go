package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	purchasesvc "github.com/aiplace-art/cry-sub006/internal/services/purchases"
	"github.com/aiplace-art/cry-sub006/internal/transport/http/dto"
	httperrors "github.com/aiplace-art/cry-sub006/internal/transport/http/errors"
)

type PurchaseHandler struct {
	purchases *purchasesvc.Service
}

func NewPurchaseHandler(purchases *purchasesvc.Service) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.purchases == nil {
		writeInternal(w, "PURCHASES_SERVICE_UNAVAILABLE", "purchases service is unavailable")
		return
	}

	var req dto.PurchaseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.purchases.Create(r.Context(), purchasesvc.CreateInput{
		WalletAddress: req.WalletAddress,
		PaymentMethod: req.PaymentMethod,
		Gateway:       req.Gateway,
		AmountCents:   req.AmountCents,
		Email:         req.Email,
		FlatBonus:     strings.TrimSpace(req.ReferralCode) != "",
		IP:            r.RemoteAddr,
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, purchasesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid purchase create payload")
		case errors.Is(err, purchasesvc.ErrDuplicatePurchase):
			writeBadRequest(w, "DUPLICATE_PURCHASE", "wallet already has an active purchase")
		case errors.Is(err, purchasesvc.ErrFraudRejected):
			writeBadRequest(w, "FRAUD_REJECTED", "purchase rejected")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to create purchase")
		}
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.PurchaseCreateResponse{
		PurchaseID:           result.PurchaseID,
		BaseTokens:           result.BaseTokens,
		BonusTokens:          result.BonusTokens,
		TotalTokens:          result.TotalTokens,
		PaymentURL:           result.PaymentURL,
		PaymentToken:         result.PaymentToken,
		ExpiresAt:            result.ExpiresAt,
		RequiresVerification: result.RequiresVerification,
	})
}

// Status resolves a payment handle issued at creation, for the gateway
// return page.
func (h *PurchaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.purchases == nil {
		writeInternal(w, "PURCHASES_SERVICE_UNAVAILABLE", "purchases service is unavailable")
		return
	}

	status, err := h.purchases.PaymentStatus(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		switch {
		case errors.Is(err, purchasesvc.ErrValidation):
			writeBadRequest(w, "INVALID_PAYMENT_TOKEN", "payment token is invalid or expired")
		case errors.Is(err, purchasesvc.ErrPurchaseNotFound):
			writeNotFound(w, "PURCHASE_NOT_FOUND", "purchase no longer exists")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to resolve payment status")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PaymentStatusResponse{
		PurchaseID:  status.PurchaseID,
		Status:      string(status.Status),
		AmountCents: status.AmountCents,
		TotalTokens: status.TotalTokens,
		CompletedAt: status.CompletedAt,
	})
}

func (h *PurchaseHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.purchases == nil {
		writeInternal(w, "PURCHASES_SERVICE_UNAVAILABLE", "purchases service is unavailable")
		return
	}

	wallet := chi.URLParam(r, "wallet")
	history, err := h.purchases.History(r.Context(), wallet)
	if err != nil {
		switch {
		case errors.Is(err, purchasesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "malformed wallet address")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load purchase history")
		}
		return
	}

	resp := dto.PurchaseHistoryResponse{
		Purchases:      make([]dto.PurchaseResponse, 0, len(history.Purchases)),
		Vesting:        make([]dto.VestingStateResponse, 0, len(history.Vesting)),
		TotalClaimable: history.TotalClaimable,
	}
	for _, purchase := range history.Purchases {
		resp.Purchases = append(resp.Purchases, dto.PurchaseResponse{
			PurchaseID:    purchase.ID,
			WalletAddress: purchase.WalletAddress,
			PaymentMethod: purchase.PaymentMethod,
			Gateway:       purchase.Gateway,
			AmountCents:   purchase.AmountCents,
			BaseTokens:    purchase.BaseTokens,
			BonusBps:      purchase.BonusBps,
			BonusTokens:   purchase.BonusTokens,
			TotalTokens:   purchase.TotalTokens,
			ClaimedTokens: purchase.ClaimedTokens,
			Status:        string(purchase.Status),
			CreatedAt:     purchase.CreatedAt,
			CompletedAt:   purchase.CompletedAt,
		})
	}
	for _, state := range history.Vesting {
		resp.Vesting = append(resp.Vesting, dto.VestingStateResponse{
			PurchaseID:      state.PurchaseID,
			TotalTokens:     state.TotalTokens,
			ImmediateTokens: state.ImmediateTokens,
			VestedTokens:    state.VestedTokens,
			ClaimedTokens:   state.ClaimedTokens,
			UnlockedTokens:  state.UnlockedTokens,
			ClaimableTokens: state.ClaimableTokens,
			ProgressBps:     state.ProgressBps,
			InCliff:         state.InCliff,
		})
	}
	for _, milestone := range history.Milestones {
		resp.Milestones = append(resp.Milestones, dto.MilestoneResponse{
			DayOffset:      milestone.DayOffset,
			At:             milestone.At,
			UnlockedTokens: milestone.UnlockedTokens,
			PercentBps:     milestone.PercentBps,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}
