package investment

import (
	"context"
	"fmt"
	"time"

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

// AmountUpgradeRequest adds principal to an active investment. NewTier is
// optional and defaults to the tier of the new total.
type AmountUpgradeRequest struct {
	InvestmentID     uuid.UUID
	AdditionalAmount decimal.Decimal
	NewTier          rates.Tier
	SenderAddress    string
}

// RequestAmountUpgrade records a PENDING upgrade and asks the operator to
// confirm the extra deposit. The investment is untouched until then.
func (s *Service) RequestAmountUpgrade(ctx context.Context, req AmountUpgradeRequest) (*models.InvestmentUpgrade, error) {
	if !req.AdditionalAmount.IsPositive() {
		return nil, apperrors.Validation("additional amount must be greater than 0")
	}
	if req.NewTier != "" && !s.schedule.HasTier(req.NewTier) {
		return nil, apperrors.Validation("unknown plan %q", req.NewTier)
	}
	if req.SenderAddress != "" {
		if _, err := s.addresses.Validate(req.SenderAddress); err != nil {
			return nil, err
		}
	}

	var upgrade *models.InvestmentUpgrade
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		asOf := s.now()
		inv, err := s.lock(ctx, tx, req.InvestmentID, asOf)
		if err != nil {
			return err
		}
		if err := requireStatus(inv, models.InvestmentActive); err != nil {
			return err
		}
		if inv.EndDate != nil && !asOf.Before(*inv.EndDate) {
			return apperrors.InvalidState("investment %s has matured", inv.ID)
		}

		pending, err := tx.FindPendingUpgrade(ctx, inv.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return apperrors.DuplicatePending("investment %s already has a pending upgrade", inv.ID)
		}
		if err := s.checkSameDay(ctx, tx, inv, asOf); err != nil {
			return err
		}

		total := inv.Amount.Add(req.AdditionalAmount)
		tier := req.NewTier
		if tier == "" {
			tier = s.schedule.TierForAmount(total)
		}
		if !s.schedule.InBounds(tier, total) {
			plan := s.schedule.Plan(tier)
			return apperrors.Validation("new total %s is outside the %s range %s to %s", total, tier, plan.Min, plan.Max)
		}

		upgrade = &models.InvestmentUpgrade{
			InvestmentID:        inv.ID,
			UserID:              inv.UserID,
			UpgradeType:         models.UpgradeAmount,
			AdditionalAmount:    req.AdditionalAmount,
			OldPackage:          inv.PlanTier,
			NewPackage:          string(tier),
			OldAPY:              inv.EffectiveROI,
			NewAPY:              s.schedule.BaseRate(tier).Add(inv.DurationBonus),
			OldDuration:         inv.Duration,
			NewDuration:         inv.Duration,
			AccumulatedInterest: accrual.Carry(inv, asOf),
			SenderAddress:       req.SenderAddress,
			Status:              models.UpgradePending,
			RequestedAt:         asOf,
		}
		upgrade.CreatedAt = asOf
		if err := tx.CreateUpgrade(ctx, upgrade); err != nil {
			return err
		}
		return s.audit.Tx(tx).LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeUpgrade,
			Severity:    audit.SeverityInfo,
			Description: "amount upgrade requested",
			UserID:      &inv.UserID,
			TargetID:    &upgrade.ID,
			Success:     true,
			Metadata:    map[string]interface{}{"investment_id": inv.ID.String(), "amount": req.AdditionalAmount.String(), "tier": string(tier)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("investment_id", upgrade.InvestmentID.String()).
		Str("upgrade_id", upgrade.ID.String()).
		Str("amount", upgrade.AdditionalAmount.StringFixed(2)).
		Msg("Amount upgrade requested")

	return upgrade, s.announce(ctx, approval.Action{
		Kind:    approval.KindUpgrade,
		ID:      upgrade.ID,
		UserID:  upgrade.UserID,
		Summary: fmt.Sprintf("Upgrade of %s USDT, %s to %s", upgrade.AdditionalAmount.StringFixed(2), upgrade.OldPackage, upgrade.NewPackage),
		Fields: []approval.Field{
			{Label: "Investment", Value: upgrade.InvestmentID.String()},
			{Label: "Sender", Value: upgrade.SenderAddress},
		},
	})
}

// checkSameDay rejects a second rate change on one calendar day: the
// running period must have started before today and no other amount
// upgrade may have been requested today.
func (s *Service) checkSameDay(ctx context.Context, tx store.Repository, inv *models.Investment, asOf time.Time) error {
	loc := s.schedule.Location()
	if accrual.SameCalendarDay(inv.AccrualBase(), asOf, loc) {
		return apperrors.SameDayUpgrade("investment %s already changed today", inv.ID)
	}

	local := asOf.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	today, err := tx.ListAmountUpgradesSince(ctx, inv.ID, midnight)
	if err != nil {
		return err
	}
	if len(today) > 0 {
		return apperrors.SameDayUpgrade("investment %s was already upgraded today", inv.ID)
	}
	return nil
}

// CompleteAmountUpgrade applies a confirmed upgrade: accrual so far is
// frozen at the old rate and the new principal and rate run from now.
func (s *Service) CompleteAmountUpgrade(ctx context.Context, upgradeID uuid.UUID) (*models.Investment, error) {
	var inv *models.Investment
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		upgrade, err := tx.GetUpgradeForUpdate(ctx, upgradeID)
		if err != nil {
			return err
		}
		if upgrade.Status != models.UpgradePending {
			return apperrors.InvalidState("upgrade %s already %s", upgrade.ID, upgrade.Status)
		}

		asOf := s.now()
		inv, err = s.lock(ctx, tx, upgrade.InvestmentID, asOf)
		if err != nil {
			return err
		}
		if err := requireStatus(inv, models.InvestmentActive); err != nil {
			return err
		}

		tier := rates.Tier(upgrade.NewPackage)
		total := inv.Amount.Add(upgrade.AdditionalAmount)
		if !s.schedule.InBounds(tier, total) {
			plan := s.schedule.Plan(tier)
			return apperrors.InvalidState("upgrade %s no longer fits: total %s is outside the %s range %s to %s", upgrade.ID, total, tier, plan.Min, plan.Max)
		}

		accrual.Freeze(inv, asOf)
		inv.Amount = total
		inv.PlanTier = string(tier)
		inv.ROI = s.schedule.BaseRate(tier)
		inv.EffectiveROI = inv.ROI.Add(inv.DurationBonus)
		inv.BonusAmount = s.schedule.CashBonus(inv.Amount, inv.Duration)
		inv.ClearPendingRate()
		if err := checkNonNegative(inv); err != nil {
			return err
		}
		if err := tx.SaveInvestment(ctx, inv); err != nil {
			return err
		}

		upgrade.Status = models.UpgradeCompleted
		upgrade.ProcessedAt = &asOf
		upgrade.AccumulatedInterest = inv.AccumulatedInterest
		upgrade.NewAPY = inv.EffectiveROI
		if err := tx.SaveUpgrade(ctx, upgrade); err != nil {
			return err
		}
		return s.audit.Tx(tx).Log(ctx, audit.EventTypeUpgrade, "amount upgrade completed", upgrade.ID, map[string]interface{}{
			"investment_id": inv.ID.String(),
			"amount":        inv.Amount.String(),
			"rate":          inv.EffectiveROI.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("investment_id", inv.ID.String()).
		Str("amount", inv.Amount.StringFixed(2)).
		Str("rate", inv.EffectiveROI.String()).
		Msg("Amount upgrade completed")
	return inv, nil
}

// RejectAmountUpgrade closes a PENDING upgrade without touching the investment
func (s *Service) RejectAmountUpgrade(ctx context.Context, upgradeID uuid.UUID, reason string) (*models.InvestmentUpgrade, error) {
	var upgrade *models.InvestmentUpgrade
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		var err error
		upgrade, err = tx.GetUpgradeForUpdate(ctx, upgradeID)
		if err != nil {
			return err
		}
		if upgrade.Status != models.UpgradePending {
			return apperrors.InvalidState("upgrade %s already %s", upgrade.ID, upgrade.Status)
		}

		at := s.now()
		upgrade.Status = models.UpgradeRejected
		upgrade.RejectionReason = reason
		upgrade.ProcessedAt = &at
		if err := tx.SaveUpgrade(ctx, upgrade); err != nil {
			return err
		}
		return s.audit.Tx(tx).LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeUpgrade,
			Severity:    audit.SeverityWarning,
			Description: "amount upgrade rejected",
			UserID:      &upgrade.UserID,
			TargetID:    &upgrade.ID,
			Success:     true,
			Metadata:    map[string]interface{}{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("upgrade_id", upgrade.ID.String()).Str("reason", reason).Msg("Amount upgrade rejected")
	return upgrade, nil
}

// ApplyDurationUpgrade lengthens the lock-in right away. It needs no new
// funds so there is nothing to confirm.
func (s *Service) ApplyDurationUpgrade(ctx context.Context, investmentID uuid.UUID, newDuration int) (*models.Investment, error) {
	if !s.schedule.ValidDuration(newDuration) {
		return nil, apperrors.Validation("duration must be one of %v months", s.schedule.Durations())
	}

	var inv *models.Investment
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		asOf := s.now()
		var err error
		inv, err = s.lock(ctx, tx, investmentID, asOf)
		if err != nil {
			return err
		}
		if err := requireStatus(inv, models.InvestmentActive); err != nil {
			return err
		}
		if newDuration <= inv.Duration {
			return apperrors.Validation("new duration %d must be longer than %d months", newDuration, inv.Duration)
		}
		if inv.EndDate == nil || !asOf.Before(*inv.EndDate) {
			return apperrors.InvalidState("investment %s has matured", inv.ID)
		}

		old := *inv
		accrual.Freeze(inv, asOf)

		bonus := s.schedule.DurationBonus(newDuration)
		end := accrual.AddMonths(*inv.EndDate, newDuration-inv.Duration)
		inv.Duration = newDuration
		inv.DurationBonus = bonus.RatePercent
		inv.EffectiveROI = inv.ROI.Add(bonus.RatePercent)
		inv.BonusAmount = s.schedule.CashBonus(inv.Amount, newDuration)
		inv.EndDate = &end
		if inv.StartDate != nil {
			unlock := inv.StartDate.Add(end.Sub(*inv.StartDate) / 2)
			inv.BonusUnlockAt = &unlock
		}
		if err := checkNonNegative(inv); err != nil {
			return err
		}
		if err := tx.SaveInvestment(ctx, inv); err != nil {
			return err
		}

		upgrade := &models.InvestmentUpgrade{
			InvestmentID:        inv.ID,
			UserID:              inv.UserID,
			UpgradeType:         models.UpgradeDuration,
			OldPackage:          old.PlanTier,
			NewPackage:          inv.PlanTier,
			OldAPY:              old.EffectiveROI,
			NewAPY:              inv.EffectiveROI,
			OldDuration:         old.Duration,
			NewDuration:         newDuration,
			OldEndDate:          old.EndDate,
			NewEndDate:          &end,
			AccumulatedInterest: inv.AccumulatedInterest,
			Status:              models.UpgradeCompleted,
			RequestedAt:         asOf,
			ProcessedAt:         &asOf,
		}
		upgrade.CreatedAt = asOf
		if err := tx.CreateUpgrade(ctx, upgrade); err != nil {
			return err
		}
		return s.audit.Tx(tx).Log(ctx, audit.EventTypeUpgrade, "duration upgrade applied", inv.ID, map[string]interface{}{
			"old_duration": old.Duration,
			"new_duration": newDuration,
			"rate":         inv.EffectiveROI.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("investment_id", inv.ID.String()).
		Int("duration", inv.Duration).
		Str("rate", inv.EffectiveROI.String()).
		Msg("Duration upgrade applied")
	return inv, nil
}
