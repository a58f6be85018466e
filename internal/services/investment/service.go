// Package investment drives an investment from the deposit request through
// activation, upgrades and reinvestment to its payout.
package investment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/security/audit"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/services/rates"
	"github.com/stakevault/backend/internal/services/withdrawal"
	"github.com/stakevault/backend/internal/store"
	"github.com/stakevault/backend/internal/validation"
)

// View is an investment together with its computed position
type View struct {
	Investment models.Investment `json:"investment"`
	Position   accrual.Position  `json:"position"`
}

// Service is the investment lifecycle
type Service struct {
	store      store.Store
	schedule   *rates.Schedule
	commission *commission.Engine
	ledger     *withdrawal.Ledger
	addresses  validation.AddressValidator
	notifier   approval.Notifier
	audit      *audit.Logger
	now        func() time.Time
	log        *logger.Logger
}

// NewService creates a new investment service
func NewService(
	st store.Store,
	schedule *rates.Schedule,
	engine *commission.Engine,
	ledger *withdrawal.Ledger,
	addresses validation.AddressValidator,
	notifier approval.Notifier,
	log *logger.Logger,
) *Service {
	return &Service{
		store:      st,
		schedule:   schedule,
		commission: engine,
		ledger:     ledger,
		addresses:  addresses,
		notifier:   notifier,
		audit:      audit.NewLogger(st),
		now:        time.Now,
		log:        log.Component("investment"),
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.audit.WithClock(now)
	return s
}

// Schedule returns the rate schedule the service was built with
func (s *Service) Schedule() *rates.Schedule {
	return s.schedule
}

// Get returns the investment with its position as of now
func (s *Service) Get(ctx context.Context, investmentID uuid.UUID) (*View, error) {
	inv, err := s.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	view := s.view(inv, s.now())
	return &view, nil
}

// ListForUser returns every investment of the user, newest first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]View, error) {
	investments, err := s.store.ListInvestmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	asOf := s.now()
	views := make([]View, 0, len(investments))
	for i := range investments {
		views = append(views, s.view(&investments[i], asOf))
	}
	return views, nil
}

// Authorize fails with NotFound unless the investment belongs to userID
func (s *Service) Authorize(ctx context.Context, userID, investmentID uuid.UUID) error {
	inv, err := s.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return err
	}
	if inv.UserID != userID {
		return apperrors.NotFound("investment %s not found", investmentID)
	}
	return nil
}

func (s *Service) view(inv *models.Investment, asOf time.Time) View {
	pos := accrual.Snapshot(inv, asOf)
	if inv.Status == models.InvestmentPending {
		pos.ExpectedReturn = s.projectedReturn(inv.Amount, inv.EffectiveROI, inv.Duration)
		pos.DailyProfit = accrual.DailyProfit(inv.Amount, inv.EffectiveROI)
	}
	return View{Investment: *inv, Position: pos}
}

// projectedReturn is principal plus a full term at rate, 30 days a month
func (s *Service) projectedReturn(principal, rate decimal.Decimal, months int) decimal.Decimal {
	return accrual.Accrue(principal, rate, 30*months, principal)
}

// lock loads the investment for update and switches in a scheduled rate
// that came due. The change is persisted by whatever the caller saves next.
func (s *Service) lock(ctx context.Context, tx store.Repository, investmentID uuid.UUID, asOf time.Time) (*models.Investment, error) {
	inv, err := tx.GetInvestmentForUpdate(ctx, investmentID)
	if err != nil {
		return nil, err
	}
	accrual.ActivatePendingRate(inv, asOf)
	return inv, nil
}

func requireStatus(inv *models.Investment, allowed ...models.InvestmentStatus) error {
	for _, st := range allowed {
		if inv.Status == st {
			return nil
		}
	}
	return apperrors.InvalidState("investment %s is %s", inv.ID, inv.Status)
}

// announce asks the approver to act after the state change committed.
// Failure leaves the state in place and comes back as ErrExternalApproval.
func (s *Service) announce(ctx context.Context, action approval.Action) error {
	if err := s.notifier.Notify(ctx, action); err != nil {
		s.log.Error().Err(err).
			Str("kind", string(action.Kind)).
			Str("id", action.ID.String()).
			Msg("Failed to notify approver")
		_ = s.audit.LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeApproval,
			Severity:    audit.SeverityError,
			Description: "approval notification failed",
			UserID:      &action.UserID,
			TargetID:    &action.ID,
			Metadata:    map[string]interface{}{"error": err.Error(), "kind": string(action.Kind)},
		})
		return apperrors.ExternalApproval(err)
	}
	return nil
}

// applyTier schedules a tier change for a grown principal. Only upgrades
// are scheduled; the new rate switches in on the next activation boundary.
func (s *Service) applyTier(inv *models.Investment, asOf time.Time) (bool, *time.Time) {
	newTier := s.schedule.TierForAmount(inv.Amount)

	current := rates.Tier(inv.PlanTier)
	if inv.HasPendingRate() && inv.PendingTier != "" {
		current = rates.Tier(inv.PendingTier)
	}
	if s.schedule.Rank(newTier) <= s.schedule.Rank(current) {
		return false, nil
	}

	activation := accrual.NextActivationDate(asOf, s.schedule.Location())
	if inv.HasPendingRate() {
		activation = *inv.RateActivationDate
	}
	inv.PendingROI = decimal.NewNullDecimal(s.schedule.BaseRate(newTier))
	inv.PendingTier = string(newTier)
	inv.RateActivationDate = &activation
	return true, &activation
}

func checkNonNegative(inv *models.Investment) error {
	if inv.Amount.IsNegative() || inv.AccumulatedInterest.IsNegative() || inv.WithdrawnProfits.IsNegative() {
		return apperrors.Invariant("investment %s has a negative balance", inv.ID)
	}
	return nil
}
