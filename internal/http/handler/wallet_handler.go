package handler

import (
	"errors"
	"net/http"

	"storefront-backend/internal/http/middleware"
	"storefront-backend/internal/http/response"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/service"
)

type WalletHandler struct {
	wallets *service.WalletService
}

func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	wallet, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "wallet not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "wallet lookup failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"balance": wallet.Balance,
	})
}
