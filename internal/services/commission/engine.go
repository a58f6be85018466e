// Package commission computes two-level referral commissions on demand and
// keeps one ReferralEarning row per (referrer, referred user, investment).
package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/store"
)

// State of one commission line
type State string

const (
	StateAvailable State = "available"
	StateLocked    State = "locked"
	// StateClaimed means a withdrawal request for the line is waiting for approval
	StateClaimed   State = "claimed"
	StateWithdrawn State = "withdrawn"
)

var hundred = decimal.NewFromInt(100)

// Line is the commission one referred investment pays the referrer
type Line struct {
	ReferralUserID   uuid.UUID       `json:"referral_user_id"`
	InvestmentID     uuid.UUID       `json:"investment_id"`
	Level            int             `json:"level"`
	Percent          decimal.Decimal `json:"percent"`
	InvestmentAmount decimal.Decimal `json:"investment_amount"`
	Amount           decimal.Decimal `json:"amount"`
	DaysPassed       int             `json:"days_passed"`
	DaysRemaining    int             `json:"days_remaining"`
	State            State           `json:"state"`
}

// Actions is the itemised commission view of one referrer
type Actions struct {
	AsOf            time.Time       `json:"as_of"`
	Level1Count     int             `json:"level1_count"`
	Level2Count     int             `json:"level2_count"`
	TierPercent     decimal.Decimal `json:"tier_percent"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
	LockedAmount    decimal.Decimal `json:"locked_amount"`
	ClaimedAmount   decimal.Decimal `json:"claimed_amount"`
	AvailableCount  int             `json:"available_count"`
	Items           []Line          `json:"items"`
}

// Available returns the lines that can be claimed right now
func (a *Actions) Available() []Line {
	var out []Line
	for _, l := range a.Items {
		if l.State == StateAvailable {
			out = append(out, l)
		}
	}
	return out
}

// Engine is the commission engine
type Engine struct {
	store store.Store
	rules Rules
	now   func() time.Time
	log   *logger.Logger
}

// NewEngine creates a new commission engine
func NewEngine(st store.Store, rules Rules, log *logger.Logger) *Engine {
	return &Engine{
		store: st,
		rules: rules,
		now:   time.Now,
		log:   log.Component("commission"),
	}
}

// WithClock replaces the time source
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Rules returns the configured commission rules
func (e *Engine) Rules() Rules {
	return e.rules
}

// TierPercent is the level-1 percent for a referrer with level1Count direct referrals
func (e *Engine) TierPercent(level1Count int) decimal.Decimal {
	return e.rules.TierPercent(level1Count)
}

// GetAvailableActions walks both referral levels and partitions every
// commission into available, locked, claimed and withdrawn. Withdrawn and
// claimed lines do not count towards the available or locked sums.
func (e *Engine) GetAvailableActions(ctx context.Context, referrerID uuid.UUID) (*Actions, error) {
	return e.Actions(ctx, e.store, referrerID, e.now())
}

// CollectAvailableEarnings returns only the lines that can be claimed now
func (e *Engine) CollectAvailableEarnings(ctx context.Context, referrerID uuid.UUID) ([]Line, error) {
	actions, err := e.Actions(ctx, e.store, referrerID, e.now())
	if err != nil {
		return nil, err
	}
	return actions.Available(), nil
}

// Actions computes the commission view against repo at asOf. Pass the
// transaction's repository to read a snapshot consistent with the writes
// that follow.
func (e *Engine) Actions(ctx context.Context, repo store.Repository, referrerID uuid.UUID, asOf time.Time) (*Actions, error) {
	level1, err := repo.ListReferredUsers(ctx, []uuid.UUID{referrerID})
	if err != nil {
		return nil, err
	}
	level1IDs := userIDs(level1)

	level2, err := repo.ListReferredUsers(ctx, level1IDs)
	if err != nil {
		return nil, err
	}
	level2IDs := userIDs(level2)

	earnings, err := repo.ListEarningsByReferrer(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	withdrawn := make(map[[2]uuid.UUID]bool, len(earnings))
	for _, earning := range earnings {
		withdrawn[[2]uuid.UUID{earning.UserID, earning.InvestmentID}] = earning.Withdrawn
	}

	actions := &Actions{
		AsOf:            asOf,
		Level1Count:     len(level1),
		Level2Count:     len(level2),
		TierPercent:     e.rules.TierPercent(len(level1)),
		AvailableAmount: decimal.Zero,
		LockedAmount:    decimal.Zero,
		ClaimedAmount:   decimal.Zero,
	}

	levels := []struct {
		level   int
		users   []uuid.UUID
		percent decimal.Decimal
	}{
		{1, level1IDs, actions.TierPercent},
		{2, level2IDs, e.rules.Level2Percent()},
	}

	for _, lv := range levels {
		investments, err := repo.ListInvestmentsByUsers(ctx, lv.users, models.InvestmentActive, models.InvestmentCompleted)
		if err != nil {
			return nil, err
		}

		for _, inv := range investments {
			line := Line{
				ReferralUserID:   inv.UserID,
				InvestmentID:     inv.ID,
				Level:            lv.level,
				Percent:          lv.percent,
				InvestmentAmount: inv.Amount,
				Amount:           Commission(inv.Amount, lv.percent),
				DaysPassed:       accrual.DaysElapsed(inv.CreatedAt, asOf),
			}
			if line.DaysPassed < e.rules.RequiredDays() {
				line.DaysRemaining = e.rules.RequiredDays() - line.DaysPassed
			}

			switch {
			case withdrawn[[2]uuid.UUID{inv.UserID, inv.ID}]:
				line.State = StateWithdrawn
			case line.DaysRemaining > 0:
				line.State = StateLocked
				actions.LockedAmount = actions.LockedAmount.Add(line.Amount)
			default:
				claimed, err := e.hasOpenClaim(ctx, repo, referrerID, line)
				if err != nil {
					return nil, err
				}
				if claimed {
					line.State = StateClaimed
					actions.ClaimedAmount = actions.ClaimedAmount.Add(line.Amount)
				} else {
					line.State = StateAvailable
					actions.AvailableAmount = actions.AvailableAmount.Add(line.Amount)
					actions.AvailableCount++
				}
			}

			actions.Items = append(actions.Items, line)
		}
	}

	return actions, nil
}

func (e *Engine) hasOpenClaim(ctx context.Context, repo store.Repository, referrerID uuid.UUID, line Line) (bool, error) {
	n, err := repo.CountWithdrawals(ctx, store.WithdrawalFilter{
		Kind:           models.WithdrawalReferral,
		UserID:         &referrerID,
		ReferralUserID: &line.ReferralUserID,
		InvestmentID:   &line.InvestmentID,
		Statuses:       []models.WithdrawalStatus{models.WithdrawalPending},
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordOrRefreshEarning upserts the earning for (referrer, user, investment).
// An existing row always gets the new amount, percentage and level: the
// earning reflects the referrer's current tier and the investment's current
// principal, not a running total.
func (e *Engine) RecordOrRefreshEarning(ctx context.Context, referrerID, userID, investmentID uuid.UUID, amount, percentage decimal.Decimal, level int) (*models.ReferralEarning, error) {
	return e.Refresh(ctx, e.store, referrerID, Line{
		ReferralUserID: userID,
		InvestmentID:   investmentID,
		Level:          level,
		Percent:        percentage,
		Amount:         amount,
	})
}

// Refresh writes line as the current earning row through repo
func (e *Engine) Refresh(ctx context.Context, repo store.Repository, referrerID uuid.UUID, line Line) (*models.ReferralEarning, error) {
	earning := &models.ReferralEarning{
		ReferrerID:   referrerID,
		UserID:       line.ReferralUserID,
		InvestmentID: line.InvestmentID,
		Amount:       line.Amount,
		Percentage:   line.Percent,
		Level:        line.Level,
	}
	earning.CreatedAt = e.now()

	if err := repo.UpsertEarning(ctx, earning); err != nil {
		return nil, err
	}

	e.log.Debug().
		Str("referrer_id", referrerID.String()).
		Str("investment_id", line.InvestmentID.String()).
		Str("amount", line.Amount.String()).
		Str("percentage", line.Percent.String()).
		Int("level", line.Level).
		Msg("Referral earning refreshed")

	return earning, nil
}

// Commission is amount * percent / 100
func Commission(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

func userIDs(users []models.User) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
