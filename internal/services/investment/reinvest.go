package investment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/security/audit"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/store"
)

// ReinvestResult describes what a reinvestment changed
type ReinvestResult struct {
	Investment     models.Investment `json:"investment"`
	Amount         decimal.Decimal   `json:"amount"`
	TierChanged    bool              `json:"tier_changed"`
	ActivationDate *time.Time        `json:"activation_date,omitempty"`
}

// ReinvestProfit moves available profit into the principal. A nil amount
// reinvests all of it. When the new principal reaches a higher tier the
// better rate is scheduled for the next activation date; until then the
// old rate keeps accruing on the new principal.
func (s *Service) ReinvestProfit(ctx context.Context, investmentID uuid.UUID, amount *decimal.Decimal) (*ReinvestResult, error) {
	if amount != nil && !amount.IsPositive() {
		return nil, apperrors.Validation("reinvest amount must be greater than 0")
	}

	var result *ReinvestResult
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		asOf := s.now()
		inv, err := s.lock(ctx, tx, investmentID, asOf)
		if err != nil {
			return err
		}
		if err := s.requireReinvestable(ctx, tx, inv, asOf); err != nil {
			return err
		}

		accrual.Freeze(inv, asOf)
		available := accrual.AvailableProfit(inv, asOf)
		value := available
		if amount != nil {
			value = *amount
		}
		if !value.IsPositive() {
			return apperrors.Validation("no profit available to reinvest")
		}
		if value.GreaterThan(available) {
			return apperrors.Validation("reinvest amount %s exceeds available profit %s", value.StringFixed(2), available.StringFixed(2))
		}

		inv.WithdrawnProfits = inv.WithdrawnProfits.Add(value)
		result, err = s.grow(ctx, tx, inv, value, models.ReinvestFromProfit, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logReinvest(result, models.ReinvestFromProfit)
	return result, nil
}

// ReinvestReferralEarnings moves every available referral earning of the
// investment's owner into its principal. The earnings are marked withdrawn
// in the same transaction.
func (s *Service) ReinvestReferralEarnings(ctx context.Context, investmentID uuid.UUID) (*ReinvestResult, error) {
	var result *ReinvestResult
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		asOf := s.now()
		inv, err := s.lock(ctx, tx, investmentID, asOf)
		if err != nil {
			return err
		}
		if err := s.requireReinvestable(ctx, tx, inv, asOf); err != nil {
			return err
		}

		actions, err := s.commission.Actions(ctx, tx, inv.UserID, asOf)
		if err != nil {
			return err
		}
		lines := actions.Available()
		if len(lines) == 0 {
			return apperrors.Validation("no referral earnings available to reinvest")
		}

		total := decimal.Zero
		for _, line := range lines {
			earning, err := s.commission.Refresh(ctx, tx, inv.UserID, line)
			if err != nil {
				return err
			}
			if err := tx.MarkEarningWithdrawn(ctx, earning.ID, asOf); err != nil {
				return err
			}
			total = total.Add(earning.Amount)
		}
		if !total.IsPositive() {
			return apperrors.Validation("no referral earnings available to reinvest")
		}

		accrual.Freeze(inv, asOf)
		result, err = s.grow(ctx, tx, inv, total, models.ReinvestFromReferral, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logReinvest(result, models.ReinvestFromReferral)
	return result, nil
}

// requireReinvestable also refuses while an amount upgrade waits for
// approval: the upgrade's tier was priced against the current principal.
func (s *Service) requireReinvestable(ctx context.Context, tx store.Repository, inv *models.Investment, asOf time.Time) error {
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
		return apperrors.DuplicatePending("investment %s has an amount upgrade waiting for approval", inv.ID)
	}
	return nil
}

// grow adds value to the principal of a frozen investment, schedules a
// tier change and writes the reinvestment row
func (s *Service) grow(ctx context.Context, tx store.Repository, inv *models.Investment, value decimal.Decimal, source models.ReinvestSource, asOf time.Time) (*ReinvestResult, error) {
	_, hi := s.schedule.Bounds()
	newAmount := inv.Amount.Add(value)
	if newAmount.GreaterThan(hi) {
		return nil, apperrors.Validation("principal would exceed the maximum of %s", hi)
	}

	oldAmount, oldTier, oldROI := inv.Amount, inv.PlanTier, inv.ROI
	inv.Amount = newAmount
	changed, activation := s.applyTier(inv, asOf)
	if err := checkNonNegative(inv); err != nil {
		return nil, err
	}
	if err := tx.SaveInvestment(ctx, inv); err != nil {
		return nil, err
	}

	record := &models.Reinvestment{
		InvestmentID:   inv.ID,
		UserID:         inv.UserID,
		Source:         source,
		Amount:         value,
		OldAmount:      oldAmount,
		NewAmount:      newAmount,
		OldPackage:     oldTier,
		NewPackage:     oldTier,
		OldROI:         oldROI,
		NewROI:         oldROI,
		ActivationDate: activation,
	}
	if changed {
		record.NewPackage = inv.PendingTier
		record.NewROI = inv.PendingROI.Decimal
	}
	record.CreatedAt = asOf
	if err := tx.CreateReinvestment(ctx, record); err != nil {
		return nil, err
	}
	if err := s.audit.Tx(tx).LogEvent(ctx, audit.Event{
		Type:        audit.EventTypeReinvest,
		Severity:    audit.SeverityInfo,
		Description: "reinvested " + string(source),
		UserID:      &inv.UserID,
		TargetID:    &inv.ID,
		Success:     true,
		Metadata:    map[string]interface{}{"amount": value.String(), "new_amount": newAmount.String(), "tier_changed": changed},
	}); err != nil {
		return nil, err
	}

	return &ReinvestResult{
		Investment:     *inv,
		Amount:         value,
		TierChanged:    changed,
		ActivationDate: activation,
	}, nil
}

func (s *Service) logReinvest(result *ReinvestResult, source models.ReinvestSource) {
	event := s.log.Info().
		Str("investment_id", result.Investment.ID.String()).
		Str("source", string(source)).
		Str("amount", result.Amount.StringFixed(2)).
		Str("principal", result.Investment.Amount.StringFixed(2))
	if result.ActivationDate != nil {
		event = event.Time("activation_date", *result.ActivationDate)
	}
	event.Msg("Reinvested")
}
