package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	claimsvc "github.com/aiplace-art/cry-sub006/internal/services/claims"
	"github.com/aiplace-art/cry-sub006/internal/transport/http/dto"
	httperrors "github.com/aiplace-art/cry-sub006/internal/transport/http/errors"
)

type ClaimHandler struct {
	claims *claimsvc.Service
}

func NewClaimHandler(claims *claimsvc.Service) *ClaimHandler {
	return &ClaimHandler{claims: claims}
}

func (h *ClaimHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.claims == nil {
		writeInternal(w, "CLAIMS_SERVICE_UNAVAILABLE", "claims service is unavailable")
		return
	}

	var req dto.ClaimCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.claims.Claim(r.Context(), claimsvc.ClaimInput{
		PurchaseID:    req.PurchaseID,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		switch {
		case errors.Is(err, claimsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid claim payload")
		case errors.Is(err, claimsvc.ErrWalletMismatch):
			// Deliberately indistinguishable from an unknown purchase id.
			writeBadRequest(w, "PURCHASE_NOT_FOUND", "no claimable purchase for this wallet")
		case errors.Is(err, claimsvc.ErrNotCompleted):
			writeBadRequest(w, "PURCHASE_NOT_COMPLETED", "purchase is not completed")
		case errors.Is(err, claimsvc.ErrNothingToClaim):
			writeBadRequest(w, "INSUFFICIENT_CLAIMABLE", "no tokens are claimable yet")
		case errors.Is(err, claimsvc.ErrDisbursementFailed):
			httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
				Code:    "DISBURSEMENT_FAILED",
				Message: "token disbursement failed, claim reverted",
			})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process claim")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ClaimCreateResponse{
		ClaimID:       result.ClaimID,
		TokensClaimed: result.AmountTokens,
		TxHash:        result.TxHash,
	})
}

func (h *ClaimHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.claims == nil {
		writeInternal(w, "CLAIMS_SERVICE_UNAVAILABLE", "claims service is unavailable")
		return
	}

	wallet := chi.URLParam(r, "wallet")
	records, err := h.claims.History(r.Context(), wallet)
	if err != nil {
		switch {
		case errors.Is(err, claimsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "malformed wallet address")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load claim history")
		}
		return
	}

	resp := dto.ClaimHistoryResponse{Claims: make([]dto.ClaimResponse, 0, len(records))}
	for _, record := range records {
		resp.Claims = append(resp.Claims, dto.ClaimResponse{
			ClaimID:       record.ID,
			PurchaseID:    record.PurchaseID,
			WalletAddress: record.WalletAddress,
			AmountTokens:  record.AmountTokens,
			Status:        string(record.Status),
			TxHash:        record.TxHash,
			CreatedAt:     record.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}
