package investment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/security/audit"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/services/rates"
	"github.com/stakevault/backend/internal/store"
)

// CreateRequest is a new deposit. Tier is optional and defaults to the
// tier the amount falls in.
type CreateRequest struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Duration      int
	WalletAddress string
	Tier          rates.Tier
}

// CreateInvestment books a PENDING investment and asks the operator to
// confirm the deposit. The investment is returned even when the approver
// could not be reached.
func (s *Service) CreateInvestment(ctx context.Context, req CreateRequest) (*View, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.Validation("investment amount must be greater than 0")
	}
	lo, hi := s.schedule.Bounds()
	if req.Amount.LessThan(lo) || req.Amount.GreaterThan(hi) {
		return nil, apperrors.Validation("investment amount must be between %s and %s", lo, hi)
	}
	if !s.schedule.ValidDuration(req.Duration) {
		return nil, apperrors.Validation("duration must be one of %v months", s.schedule.Durations())
	}
	tier := req.Tier
	if tier == "" {
		tier = s.schedule.TierForAmount(req.Amount)
	}
	if !s.schedule.HasTier(tier) {
		return nil, apperrors.Validation("unknown plan %q", tier)
	}
	if !s.schedule.InBounds(tier, req.Amount) {
		plan := s.schedule.Plan(tier)
		return nil, apperrors.Validation("%s plan takes between %s and %s", tier, plan.Min, plan.Max)
	}
	if _, err := s.addresses.Validate(req.WalletAddress); err != nil {
		return nil, err
	}

	bonus := s.schedule.DurationBonus(req.Duration)
	inv := &models.Investment{
		UserID:        req.UserID,
		PlanTier:      string(tier),
		Amount:        req.Amount,
		Duration:      req.Duration,
		ROI:           s.schedule.BaseRate(tier),
		DurationBonus: bonus.RatePercent,
		EffectiveROI:  s.schedule.EffectiveRate(tier, req.Duration),
		BonusAmount:   s.schedule.CashBonus(req.Amount, req.Duration),
		WalletAddress: req.WalletAddress,
		Status:        models.InvestmentPending,
	}
	inv.CreatedAt = s.now()

	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return err
		}
		if err := tx.CreateInvestment(ctx, inv); err != nil {
			return err
		}
		return s.audit.Tx(tx).LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeInvestment,
			Severity:    audit.SeverityInfo,
			Description: "investment created",
			UserID:      &inv.UserID,
			TargetID:    &inv.ID,
			Success:     true,
			Metadata:    map[string]interface{}{"amount": inv.Amount.String(), "duration": inv.Duration, "tier": inv.PlanTier},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("investment_id", inv.ID.String()).
		Str("user_id", inv.UserID.String()).
		Str("amount", inv.Amount.StringFixed(2)).
		Str("tier", inv.PlanTier).
		Msg("Investment created")

	view := s.view(inv, s.now())
	return &view, s.announce(ctx, approval.Action{
		Kind:    approval.KindInvestment,
		ID:      inv.ID,
		UserID:  inv.UserID,
		Summary: fmt.Sprintf("New %s investment of %s USDT for %d months", inv.PlanTier, inv.Amount.StringFixed(2), inv.Duration),
		Fields: []approval.Field{
			{Label: "Rate", Value: inv.EffectiveROI.String() + "% / month"},
			{Label: "Wallet", Value: inv.WalletAddress},
		},
	})
}

// ConfirmFunding starts the term of a PENDING investment once the deposit
// arrived.
func (s *Service) ConfirmFunding(ctx context.Context, investmentID uuid.UUID) (*models.Investment, error) {
	var inv *models.Investment
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		var err error
		inv, err = tx.GetInvestmentForUpdate(ctx, investmentID)
		if err != nil {
			return err
		}
		if err := requireStatus(inv, models.InvestmentPending); err != nil {
			return err
		}

		start := s.now()
		end := accrual.AddMonths(start, inv.Duration)
		unlock := start.Add(end.Sub(start) / 2)
		inv.Status = models.InvestmentActive
		inv.StartDate = &start
		inv.EndDate = &end
		inv.BonusUnlockAt = &unlock
		inv.AccumulatedInterest = decimal.Zero
		inv.LastUpgradeDate = nil

		if err := tx.SaveInvestment(ctx, inv); err != nil {
			return err
		}
		return s.audit.Tx(tx).Log(ctx, audit.EventTypeInvestment, "investment funded", inv.ID, map[string]interface{}{
			"amount":   inv.Amount.String(),
			"end_date": end,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("investment_id", inv.ID.String()).Time("end_date", *inv.EndDate).Msg("Investment activated")
	return inv, nil
}

// CancelInvestment drops a deposit that never arrived
func (s *Service) CancelInvestment(ctx context.Context, investmentID uuid.UUID, reason string) (*models.Investment, error) {
	var inv *models.Investment
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		var err error
		inv, err = tx.GetInvestmentForUpdate(ctx, investmentID)
		if err != nil {
			return err
		}
		if err := requireStatus(inv, models.InvestmentPending); err != nil {
			return err
		}

		at := s.now()
		inv.Status = models.InvestmentCancelled
		inv.ClosedAt = &at
		if err := tx.SaveInvestment(ctx, inv); err != nil {
			return err
		}
		return s.audit.Tx(tx).LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeInvestment,
			Severity:    audit.SeverityWarning,
			Description: "investment cancelled",
			UserID:      &inv.UserID,
			TargetID:    &inv.ID,
			Success:     true,
			Metadata:    map[string]interface{}{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("investment_id", inv.ID.String()).Str("reason", reason).Msg("Investment cancelled")
	return inv, nil
}
