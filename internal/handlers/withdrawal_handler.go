package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/services/withdrawal"
)

// WithdrawalHandler exposes the caller's withdrawal requests
type WithdrawalHandler struct {
	ledger *withdrawal.Ledger
}

// NewWithdrawalHandler creates a new withdrawal handler
func NewWithdrawalHandler(ledger *withdrawal.Ledger) *WithdrawalHandler {
	return &WithdrawalHandler{ledger: ledger}
}

// ListWithdrawals lists the caller's requests, newest first
func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requests, err := h.ledger.ListForUser(c.Request.Context(), userID)
	respond(c, http.StatusOK, requests, err)
}

// GetWithdrawal returns the status of one of the caller's requests
func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	req, err := h.ledger.Status(c.Request.Context(), id)
	if err == nil && req.UserID != userID {
		err = apperrors.NotFound("withdrawal request %s not found", id)
	}
	respond(c, http.StatusOK, nilIfEmpty(req), err)
}
