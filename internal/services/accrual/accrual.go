// Package accrual computes interest on demand from stored dates and rates.
// Nothing here reads the wall clock; every function takes asOf.
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/models"
)

// Day is the accrual unit
const Day = 24 * time.Hour

var (
	daysPerMonth = decimal.NewFromInt(30)
	hundred      = decimal.NewFromInt(100)
)

// DaysElapsed is the number of whole days from base to asOf, never negative
func DaysElapsed(base, asOf time.Time) int {
	if !asOf.After(base) {
		return 0
	}
	return int(asOf.Sub(base) / Day)
}

// dailyScale is the number of decimal places kept for one day's interest
const dailyScale = 18

// DailyInterest is principal * monthlyRate/30/100 at a fixed scale. Accrual
// is this amount times the day count, so splitting a period never changes
// the total.
func DailyInterest(principal, monthlyRate decimal.Decimal) decimal.Decimal {
	return principal.Mul(monthlyRate).DivRound(daysPerMonth.Mul(hundred), dailyScale)
}

// Accrue adds DailyInterest * days to baseline. The result is floored at zero.
func Accrue(principal, monthlyRate decimal.Decimal, days int, baseline decimal.Decimal) decimal.Decimal {
	if days < 0 {
		days = 0
	}
	interest := DailyInterest(principal, monthlyRate).Mul(decimal.NewFromInt(int64(days)))

	total := baseline.Add(interest)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// DailyProfit is what one day at the given rate earns
func DailyProfit(principal, monthlyRate decimal.Decimal) decimal.Decimal {
	return Accrue(principal, monthlyRate, 1, decimal.Zero)
}

// Round2 is for presentation only
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// horizon caps asOf at the end of the term
func horizon(inv *models.Investment, asOf time.Time) time.Time {
	if inv.EndDate != nil && asOf.After(*inv.EndDate) {
		return *inv.EndDate
	}
	return asOf
}

// pendingEffective is the rate a scheduled change will switch to
func pendingEffective(inv *models.Investment) decimal.Decimal {
	return inv.PendingROI.Decimal.Add(inv.DurationBonus)
}

// Carry is the total interest accrued at asOf: the frozen baseline plus the
// running period. A scheduled rate keeps the old rate until its activation
// date and carries forward from there. Accrual stops at the end of the term.
func Carry(inv *models.Investment, asOf time.Time) decimal.Decimal {
	if inv.Status != models.InvestmentActive {
		return inv.AccumulatedInterest
	}

	until := horizon(inv, asOf)
	baseline := inv.AccumulatedInterest
	base := inv.AccrualBase()
	rate := inv.EffectiveROI

	if inv.HasPendingRate() && !until.Before(*inv.RateActivationDate) {
		activation := *inv.RateActivationDate
		baseline = Accrue(inv.Amount, rate, DaysElapsed(base, activation), baseline)
		if activation.After(base) {
			base = activation
		}
		rate = pendingEffective(inv)
	}

	return Accrue(inv.Amount, rate, DaysElapsed(base, until), baseline)
}

// ActivatePendingRate switches a scheduled rate in once asOf reaches its
// activation date. Accrual up to that date is frozen at the old rate. Returns
// whether anything changed.
func ActivatePendingRate(inv *models.Investment, asOf time.Time) bool {
	if !inv.HasPendingRate() || inv.Status != models.InvestmentActive {
		return false
	}
	activation := *inv.RateActivationDate
	if horizon(inv, asOf).Before(activation) {
		return false
	}

	base := inv.AccrualBase()
	inv.AccumulatedInterest = Accrue(inv.Amount, inv.EffectiveROI, DaysElapsed(base, activation), inv.AccumulatedInterest)
	if activation.After(base) {
		inv.LastUpgradeDate = &activation
	}
	inv.ROI = inv.PendingROI.Decimal
	if inv.PendingTier != "" {
		inv.PlanTier = inv.PendingTier
	}
	inv.EffectiveROI = inv.ROI.Add(inv.DurationBonus)
	inv.ClearPendingRate()
	return true
}

// Freeze moves everything accrued up to asOf into AccumulatedInterest and
// restarts day counting at asOf. Every rate-changing operation calls it
// before touching the rate or the principal.
func Freeze(inv *models.Investment, asOf time.Time) decimal.Decimal {
	ActivatePendingRate(inv, asOf)
	inv.AccumulatedInterest = Carry(inv, asOf)
	at := asOf
	inv.LastUpgradeDate = &at
	return inv.AccumulatedInterest
}

// AvailableProfit is accrued interest not yet withdrawn or reinvested
func AvailableProfit(inv *models.Investment, asOf time.Time) decimal.Decimal {
	available := Carry(inv, asOf).Sub(inv.WithdrawnProfits)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
