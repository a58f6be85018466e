package accrual

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/models"
)

// Position is the computed view of an investment at a point in time
type Position struct {
	AsOf            time.Time       `json:"as_of"`
	DaysPassed      int             `json:"days_passed"`
	DaysRemaining   int             `json:"days_remaining"`
	CurrentRate     decimal.Decimal `json:"current_rate"`
	CurrentReturn   decimal.Decimal `json:"current_return"`
	AvailableProfit decimal.Decimal `json:"available_profit"`
	ExpectedReturn  decimal.Decimal `json:"expected_return"`
	DailyProfit     decimal.Decimal `json:"daily_profit"`
	BonusUnlocked   bool            `json:"bonus_unlocked"`
	Matured         bool            `json:"matured"`
	PendingRate     *PendingRate    `json:"pending_rate,omitempty"`
}

// PendingRate describes a scheduled rate switch
type PendingRate struct {
	Tier           string          `json:"tier"`
	EffectiveRate  decimal.Decimal `json:"effective_rate"`
	ActivationDate time.Time       `json:"activation_date"`
}

// DaysRemaining rounds the time left in the term up to whole days
func DaysRemaining(end, asOf time.Time) int {
	if !end.After(asOf) {
		return 0
	}
	return int(math.Ceil(end.Sub(asOf).Hours() / 24))
}

// Snapshot computes the position of inv at asOf without mutating it
func Snapshot(inv *models.Investment, asOf time.Time) Position {
	work := *inv
	ActivatePendingRate(&work, asOf)

	pos := Position{
		AsOf:          asOf,
		CurrentRate:   work.EffectiveROI,
		CurrentReturn: Carry(&work, asOf),
	}
	pos.AvailableProfit = pos.CurrentReturn.Sub(work.WithdrawnProfits)
	if pos.AvailableProfit.IsNegative() {
		pos.AvailableProfit = decimal.Zero
	}

	if work.Status == models.InvestmentActive {
		pos.DaysPassed = DaysElapsed(work.AccrualBase(), horizon(&work, asOf))
		pos.DailyProfit = DailyProfit(work.Amount, work.EffectiveROI)
	}
	if work.EndDate != nil {
		pos.DaysRemaining = DaysRemaining(*work.EndDate, asOf)
		pos.Matured = !asOf.Before(*work.EndDate)
	}
	if work.BonusUnlockAt != nil {
		pos.BonusUnlocked = !asOf.Before(*work.BonusUnlockAt)
	}

	futureRate := work.EffectiveROI
	if work.HasPendingRate() {
		futureRate = pendingEffective(&work)
		pos.PendingRate = &PendingRate{
			Tier:           work.PendingTier,
			EffectiveRate:  futureRate,
			ActivationDate: *work.RateActivationDate,
		}
	}

	pos.ExpectedReturn = work.Amount.Add(pos.CurrentReturn)
	if work.Status == models.InvestmentActive && pos.DaysRemaining > 0 {
		pos.ExpectedReturn = Accrue(work.Amount, futureRate, pos.DaysRemaining, pos.ExpectedReturn)
	}
	return pos
}
