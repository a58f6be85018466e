package investment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/security/audit"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/store"
)

// ActivatePendingRates switches in every scheduled rate that is due at
// asOf. Each investment is handled in its own transaction; failures are
// logged and the sweep carries on.
func (s *Service) ActivatePendingRates(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.store.ListActivationDue(ctx, asOf)
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, candidate := range due {
		changed := false
		err := store.Transact(ctx, s.store, func(tx store.Repository) error {
			inv, err := tx.GetInvestmentForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			changed = accrual.ActivatePendingRate(inv, asOf)
			if !changed {
				return nil
			}
			if err := tx.SaveInvestment(ctx, inv); err != nil {
				return err
			}
			return s.audit.Tx(tx).Log(ctx, audit.EventTypeInvestment, "scheduled rate activated", inv.ID, map[string]interface{}{
				"tier": inv.PlanTier,
				"rate": inv.EffectiveROI.String(),
			})
		})
		if err != nil {
			s.log.Error().Err(err).Str("investment_id", candidate.ID.String()).Msg("Failed to activate scheduled rate")
			continue
		}
		if changed {
			activated++
		}
	}

	if activated > 0 {
		s.log.Info().Int("count", activated).Msg("Scheduled rates activated")
	}
	return activated, nil
}

// CompleteMatured ends the term of every ACTIVE investment whose end date
// passed. Interest is frozen at the end date and stays withdrawable.
func (s *Service) CompleteMatured(ctx context.Context, asOf time.Time) (int, error) {
	matured, err := s.store.ListMatured(ctx, asOf)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, candidate := range matured {
		done, err := s.complete(ctx, candidate.ID, asOf)
		if err != nil {
			s.log.Error().Err(err).Str("investment_id", candidate.ID.String()).Msg("Failed to complete matured investment")
			continue
		}
		if done {
			completed++
		}
	}

	if completed > 0 {
		s.log.Info().Int("count", completed).Msg("Matured investments completed")
	}
	return completed, nil
}

func (s *Service) complete(ctx context.Context, investmentID uuid.UUID, asOf time.Time) (bool, error) {
	done := false
	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		inv, err := tx.GetInvestmentForUpdate(ctx, investmentID)
		if err != nil {
			return err
		}
		if inv.Status != models.InvestmentActive || inv.EndDate == nil || asOf.Before(*inv.EndDate) {
			return nil
		}

		accrual.Freeze(inv, *inv.EndDate)
		inv.ClearPendingRate()
		inv.Status = models.InvestmentCompleted
		if err := tx.SaveInvestment(ctx, inv); err != nil {
			return err
		}
		done = true
		return s.audit.Tx(tx).Log(ctx, audit.EventTypeInvestment, "investment matured", inv.ID, map[string]interface{}{
			"interest": inv.AccumulatedInterest.String(),
		})
	})
	return done && err == nil, err
}
