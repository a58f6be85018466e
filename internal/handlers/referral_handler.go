package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/services/withdrawal"
)

// ReferralHandler handles referral commission requests
type ReferralHandler struct {
	engine *commission.Engine
	ledger *withdrawal.Ledger
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(engine *commission.Engine, ledger *withdrawal.Ledger) *ReferralHandler {
	return &ReferralHandler{engine: engine, ledger: ledger}
}

// GetStats returns the caller's commission totals
func (h *ReferralHandler) GetStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.engine.Stats(c.Request.Context(), userID)
	respond(c, http.StatusOK, stats, err)
}

// GetActions returns the itemised commission lines
func (h *ReferralHandler) GetActions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	actions, err := h.engine.GetAvailableActions(c.Request.Context(), userID)
	respond(c, http.StatusOK, actions, err)
}

type referralWithdrawRequest struct {
	Address string `json:"address" binding:"required"`
}

// Withdraw claims every available commission line in one batch
func (h *ReferralHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req referralWithdrawRequest
	if !bind(c, &req) {
		return
	}
	batch, err := h.ledger.RequestReferralWithdrawal(c.Request.Context(), userID, req.Address)
	respond(c, http.StatusCreated, nilIfEmpty(batch), err)
}
