package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stakevault/backend/internal/services/users"
)

// UserHandler handles account requests
type UserHandler struct {
	users *users.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(svc *users.Service) *UserHandler {
	return &UserHandler{users: svc}
}

type registerRequest struct {
	Email          string `json:"email" binding:"required"`
	Username       string `json:"username"`
	ReferralCode   string `json:"referral_code"`
	TelegramChatID *int64 `json:"telegram_chat_id"`
	Language       string `json:"language"`
}

// Register creates an account, optionally under a referrer
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.users.Register(c.Request.Context(), users.RegisterRequest{
		Email:          req.Email,
		Username:       req.Username,
		ReferralCode:   req.ReferralCode,
		TelegramChatID: req.TelegramChatID,
		Language:       req.Language,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"user":          user,
		"referral_link": h.users.ReferralLink(user),
	}})
}

// GetMe returns the caller's account and referral link
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user":          user,
		"referral_link": h.users.ReferralLink(user),
	}})
}

// GetReferrals lists the users the caller invited directly
func (h *UserHandler) GetReferrals(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	referrals, err := h.users.Referrals(c.Request.Context(), userID)
	respond(c, http.StatusOK, referrals, err)
}
