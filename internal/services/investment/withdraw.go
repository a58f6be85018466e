package investment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/services/withdrawal"
	"github.com/stakevault/backend/internal/store"
)

// EarlyWithdraw claims the principal back inside the early window. Accrued
// interest is forfeited and profit already withdrawn is deducted.
func (s *Service) EarlyWithdraw(ctx context.Context, investmentID uuid.UUID, address string) (*models.WithdrawalRequest, error) {
	return s.claim(ctx, investmentID, address, func(inv *models.Investment, asOf time.Time) (withdrawal.Claim, error) {
		if err := requireStatus(inv, models.InvestmentActive); err != nil {
			return withdrawal.Claim{}, err
		}
		if inv.StartDate == nil || inv.EndDate == nil || !asOf.Before(*inv.EndDate) {
			return withdrawal.Claim{}, apperrors.InvalidState("investment %s has matured, use a full withdrawal", inv.ID)
		}
		days := accrual.DaysElapsed(*inv.StartDate, asOf)
		if days > s.schedule.EarlyWithdrawDays() {
			return withdrawal.Claim{}, apperrors.InvalidState("early withdrawal is only possible within %d days of the start", s.schedule.EarlyWithdrawDays())
		}

		payout := inv.Amount.Sub(inv.WithdrawnProfits)
		if !payout.IsPositive() {
			return withdrawal.Claim{}, apperrors.InvalidState("nothing left to withdraw from investment %s", inv.ID)
		}
		return withdrawal.Claim{
			Kind:             models.WithdrawalEarly,
			Amount:           payout,
			EarnedInterest:   accrual.Carry(inv, asOf),
			WithdrawnProfits: inv.WithdrawnProfits,
			DaysInvested:     days,
		}, nil
	})
}

// PartialWithdraw claims part of the available profit
func (s *Service) PartialWithdraw(ctx context.Context, investmentID uuid.UUID, amount decimal.Decimal, address string) (*models.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("withdrawal amount must be greater than 0")
	}
	return s.claim(ctx, investmentID, address, func(inv *models.Investment, asOf time.Time) (withdrawal.Claim, error) {
		if err := requireStatus(inv, models.InvestmentActive, models.InvestmentCompleted); err != nil {
			return withdrawal.Claim{}, err
		}
		available := accrual.AvailableProfit(inv, asOf)
		if amount.GreaterThan(available) {
			return withdrawal.Claim{}, apperrors.Validation("amount %s exceeds available profit %s", amount.StringFixed(2), available.StringFixed(2))
		}
		return withdrawal.Claim{
			Kind:             models.WithdrawalPartial,
			Amount:           amount,
			EarnedInterest:   accrual.Carry(inv, asOf),
			WithdrawnProfits: inv.WithdrawnProfits,
			DaysInvested:     daysInvested(inv, asOf),
		}, nil
	})
}

// WithdrawBonus claims the cash bonus once half the term has passed
func (s *Service) WithdrawBonus(ctx context.Context, investmentID uuid.UUID, address string) (*models.WithdrawalRequest, error) {
	return s.claim(ctx, investmentID, address, func(inv *models.Investment, asOf time.Time) (withdrawal.Claim, error) {
		if err := requireStatus(inv, models.InvestmentActive, models.InvestmentCompleted); err != nil {
			return withdrawal.Claim{}, err
		}
		if !inv.BonusAmount.IsPositive() {
			return withdrawal.Claim{}, apperrors.Validation("investment %s has no cash bonus", inv.ID)
		}
		if inv.BonusWithdrawn {
			return withdrawal.Claim{}, apperrors.InvalidState("bonus of investment %s already withdrawn", inv.ID)
		}
		if inv.BonusUnlockAt == nil || asOf.Before(*inv.BonusUnlockAt) {
			return withdrawal.Claim{}, apperrors.InvalidState("bonus of investment %s is still locked", inv.ID)
		}
		return withdrawal.Claim{
			Kind:         models.WithdrawalBonus,
			Amount:       inv.BonusAmount,
			DaysInvested: daysInvested(inv, asOf),
		}, nil
	})
}

// FullWithdraw claims principal plus unwithdrawn profit at the end of the term
func (s *Service) FullWithdraw(ctx context.Context, investmentID uuid.UUID, address string) (*models.WithdrawalRequest, error) {
	return s.claim(ctx, investmentID, address, func(inv *models.Investment, asOf time.Time) (withdrawal.Claim, error) {
		if err := requireStatus(inv, models.InvestmentActive, models.InvestmentCompleted); err != nil {
			return withdrawal.Claim{}, err
		}
		if inv.EndDate == nil || asOf.Before(*inv.EndDate) {
			return withdrawal.Claim{}, apperrors.InvalidState("investment %s has not matured yet", inv.ID)
		}
		available := accrual.AvailableProfit(inv, asOf)
		return withdrawal.Claim{
			Kind:             models.WithdrawalFull,
			Amount:           inv.Amount.Add(available),
			EarnedInterest:   accrual.Carry(inv, asOf),
			WithdrawnProfits: inv.WithdrawnProfits,
			DaysInvested:     daysInvested(inv, asOf),
		}, nil
	})
}

// claim books a withdrawal built from the locked investment and announces
// it after commit
func (s *Service) claim(ctx context.Context, investmentID uuid.UUID, address string, build func(inv *models.Investment, asOf time.Time) (withdrawal.Claim, error)) (*models.WithdrawalRequest, error) {
	if _, err := s.addresses.Validate(address); err != nil {
		return nil, err
	}

	var req *models.WithdrawalRequest
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		asOf := s.now()
		inv, err := s.lock(ctx, tx, investmentID, asOf)
		if err != nil {
			return err
		}
		if inv.IsClosed() {
			return apperrors.InvalidState("investment %s is already closed", inv.ID)
		}

		claim, err := build(inv, asOf)
		if err != nil {
			return err
		}
		claim.UserID = inv.UserID
		claim.InvestmentID = inv.ID
		claim.Address = address

		req, err = s.ledger.Create(ctx, tx, claim)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("investment_id", investmentID.String()).
		Str("withdrawal_id", req.ID.String()).
		Str("kind", string(req.Kind)).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("Withdrawal requested")
	return req, s.ledger.Announce(ctx, req)
}

func daysInvested(inv *models.Investment, asOf time.Time) int {
	if inv.StartDate == nil {
		return 0
	}
	until := asOf
	if inv.EndDate != nil && until.After(*inv.EndDate) {
		until = *inv.EndDate
	}
	return accrual.DaysElapsed(*inv.StartDate, until)
}
