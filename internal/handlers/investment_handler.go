package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/services/investment"
	"github.com/stakevault/backend/internal/services/rates"
)

// InvestmentHandler handles investment lifecycle requests
type InvestmentHandler struct {
	service *investment.Service
}

// NewInvestmentHandler creates a new investment handler
func NewInvestmentHandler(service *investment.Service) *InvestmentHandler {
	return &InvestmentHandler{service: service}
}

type planResponse struct {
	Tier        rates.Tier      `json:"tier"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	Min         decimal.Decimal `json:"min"`
	Max         decimal.Decimal `json:"max"`
}

type durationResponse struct {
	Months     int             `json:"months"`
	RateBonus  decimal.Decimal `json:"rate_bonus"`
	CashAt500  decimal.Decimal `json:"cash_bonus_500"`
	CashAt1000 decimal.Decimal `json:"cash_bonus_1000"`
}

// GetPlans returns the rate table
func (h *InvestmentHandler) GetPlans(c *gin.Context) {
	schedule := h.service.Schedule()

	var plans []planResponse
	for _, p := range schedule.Plans() {
		plans = append(plans, planResponse{Tier: p.Tier, MonthlyRate: p.MonthlyRate, Min: p.Min, Max: p.Max})
	}
	var durations []durationResponse
	for _, months := range schedule.Durations() {
		b := schedule.DurationBonus(months)
		durations = append(durations, durationResponse{Months: months, RateBonus: b.RatePercent, CashAt500: b.CashAt500, CashAt1000: b.CashAt1000})
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"plans": plans, "durations": durations}})
}

type createInvestmentRequest struct {
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Duration      int             `json:"duration" binding:"required"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
	Tier          string          `json:"tier"`
}

// CreateInvestment books a new deposit awaiting confirmation
func (h *InvestmentHandler) CreateInvestment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createInvestmentRequest
	if !bind(c, &req) {
		return
	}

	view, err := h.service.CreateInvestment(c.Request.Context(), investment.CreateRequest{
		UserID:        userID,
		Amount:        req.Amount,
		Duration:      req.Duration,
		WalletAddress: req.WalletAddress,
		Tier:          rates.Tier(req.Tier),
	})
	respond(c, http.StatusCreated, nilIfEmpty(view), err)
}

// ListInvestments lists the user's investments with their positions
func (h *InvestmentHandler) ListInvestments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	views, err := h.service.ListForUser(c.Request.Context(), userID)
	respond(c, http.StatusOK, views, err)
}

// GetInvestment returns one of the user's investments
func (h *InvestmentHandler) GetInvestment(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), id)
	respond(c, http.StatusOK, nilIfEmpty(view), err)
}

type amountUpgradeRequest struct {
	AdditionalAmount decimal.Decimal `json:"additional_amount" binding:"required"`
	NewTier          string          `json:"new_tier"`
	SenderAddress    string          `json:"sender_address"`
}

// RequestAmountUpgrade asks to add principal
func (h *InvestmentHandler) RequestAmountUpgrade(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req amountUpgradeRequest
	if !bind(c, &req) {
		return
	}

	upgrade, err := h.service.RequestAmountUpgrade(c.Request.Context(), investment.AmountUpgradeRequest{
		InvestmentID:     id,
		AdditionalAmount: req.AdditionalAmount,
		NewTier:          rates.Tier(req.NewTier),
		SenderAddress:    req.SenderAddress,
	})
	respond(c, http.StatusCreated, nilIfEmpty(upgrade), err)
}

type durationUpgradeRequest struct {
	Duration int `json:"duration" binding:"required"`
}

// UpgradeDuration extends the term
func (h *InvestmentHandler) UpgradeDuration(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req durationUpgradeRequest
	if !bind(c, &req) {
		return
	}
	inv, err := h.service.ApplyDurationUpgrade(c.Request.Context(), id, req.Duration)
	respond(c, http.StatusOK, inv, err)
}

type reinvestRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// Reinvest moves profit into the principal; no amount means all of it
func (h *InvestmentHandler) Reinvest(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req reinvestRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	result, err := h.service.ReinvestProfit(c.Request.Context(), id, req.Amount)
	respond(c, http.StatusOK, result, err)
}

// ReinvestReferral moves available referral earnings into the principal
func (h *InvestmentHandler) ReinvestReferral(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	result, err := h.service.ReinvestReferralEarnings(c.Request.Context(), id)
	respond(c, http.StatusOK, result, err)
}

type withdrawRequest struct {
	Kind    string          `json:"kind" binding:"required,oneof=early partial bonus full"`
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address" binding:"required"`
}

// Withdraw books a withdrawal claim against the investment
func (h *InvestmentHandler) Withdraw(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var (
		result interface{}
		err    error
	)
	switch req.Kind {
	case "early":
		r, e := h.service.EarlyWithdraw(ctx, id, req.Address)
		result, err = nilIfEmpty(r), e
	case "partial":
		r, e := h.service.PartialWithdraw(ctx, id, req.Amount, req.Address)
		result, err = nilIfEmpty(r), e
	case "bonus":
		r, e := h.service.WithdrawBonus(ctx, id, req.Address)
		result, err = nilIfEmpty(r), e
	case "full":
		r, e := h.service.FullWithdraw(ctx, id, req.Address)
		result, err = nilIfEmpty(r), e
	}
	respond(c, http.StatusCreated, result, err)
}

// owned parses :id and checks the investment belongs to the caller
func (h *InvestmentHandler) owned(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := paramID(c, "id")
	if !ok {
		return uuid.Nil, false
	}
	if err := h.service.Authorize(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return uuid.Nil, false
	}
	return id, true
}
