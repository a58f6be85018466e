package rates

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a named rate bracket keyed by principal range
type Tier string

const (
	Starter  Tier = "Starter"
	Advanced Tier = "Advanced"
	Pro      Tier = "Pro"
	Elite    Tier = "Elite"
)

// Plan is one row of the rate table. MonthlyRate is a percent.
type Plan struct {
	Tier        Tier
	MonthlyRate decimal.Decimal
	Min         decimal.Decimal
	Max         decimal.Decimal
}

// Bonus is what a longer lock-in adds on top of the plan rate
type Bonus struct {
	RatePercent decimal.Decimal
	CashAt500   decimal.Decimal
	CashAt1000  decimal.Decimal
}

// Schedule is the immutable rate configuration handed to the engines at
// construction time.
type Schedule struct {
	plans       []Plan
	bonuses     map[int]Bonus
	cashLow     decimal.Decimal
	cashHigh    decimal.Decimal
	location    *time.Location
	earlyWindow int
}

// Options tunes the parts of the schedule that are not per-plan
type Options struct {
	CashBonusLow      decimal.Decimal
	CashBonusHigh     decimal.Decimal
	Location          *time.Location
	EarlyWithdrawDays int
}

// NewSchedule validates and freezes a rate table. Plans are sorted by Min and
// must not overlap.
func NewSchedule(plans []Plan, bonuses map[int]Bonus, opts Options) (*Schedule, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("rate schedule needs at least one plan")
	}
	if len(bonuses) == 0 {
		return nil, fmt.Errorf("rate schedule needs at least one duration")
	}

	sorted := make([]Plan, len(plans))
	copy(sorted, plans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min.LessThan(sorted[j].Min) })

	for i, p := range sorted {
		if p.Tier == "" {
			return nil, fmt.Errorf("plan %d has no tier name", i)
		}
		if p.MonthlyRate.IsNegative() {
			return nil, fmt.Errorf("plan %s has a negative rate", p.Tier)
		}
		if p.Max.LessThan(p.Min) {
			return nil, fmt.Errorf("plan %s max is below min", p.Tier)
		}
		if i > 0 && !p.Min.GreaterThan(sorted[i-1].Max) {
			return nil, fmt.Errorf("plan %s overlaps %s", p.Tier, sorted[i-1].Tier)
		}
	}

	copied := make(map[int]Bonus, len(bonuses))
	for months, b := range bonuses {
		if months <= 0 {
			return nil, fmt.Errorf("duration %d must be positive", months)
		}
		copied[months] = b
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	cashLow := opts.CashBonusLow
	if cashLow.IsZero() {
		cashLow = decimal.NewFromInt(500)
	}
	cashHigh := opts.CashBonusHigh
	if cashHigh.IsZero() {
		cashHigh = decimal.NewFromInt(1000)
	}
	early := opts.EarlyWithdrawDays
	if early <= 0 {
		early = 30
	}

	return &Schedule{
		plans:       sorted,
		bonuses:     copied,
		cashLow:     cashLow,
		cashHigh:    cashHigh,
		location:    loc,
		earlyWindow: early,
	}, nil
}

// DefaultSchedule returns the production rate table
func DefaultSchedule() *Schedule {
	s, err := NewSchedule(DefaultPlans(), DefaultBonuses(), Options{})
	if err != nil {
		panic(err)
	}
	return s
}

func DefaultPlans() []Plan {
	return []Plan{
		{Tier: Starter, MonthlyRate: decimal.NewFromInt(14), Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(999)},
		{Tier: Advanced, MonthlyRate: decimal.NewFromInt(17), Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(2999)},
		{Tier: Pro, MonthlyRate: decimal.NewFromInt(20), Min: decimal.NewFromInt(3000), Max: decimal.NewFromInt(5999)},
		{Tier: Elite, MonthlyRate: decimal.NewFromInt(22), Min: decimal.NewFromInt(6000), Max: decimal.NewFromInt(100000)},
	}
}

func DefaultBonuses() map[int]Bonus {
	return map[int]Bonus{
		3:  {},
		6:  {RatePercent: decimal.NewFromFloat(1.5), CashAt500: decimal.NewFromInt(200), CashAt1000: decimal.NewFromInt(500)},
		12: {RatePercent: decimal.NewFromInt(3), CashAt500: decimal.NewFromInt(200), CashAt1000: decimal.NewFromInt(500)},
	}
}

// Plans returns a copy of the table, lowest tier first
func (s *Schedule) Plans() []Plan {
	out := make([]Plan, len(s.plans))
	copy(out, s.plans)
	return out
}

// Plan looks up a tier. Unknown tiers resolve to the lowest plan.
func (s *Schedule) Plan(tier Tier) Plan {
	for _, p := range s.plans {
		if p.Tier == tier {
			return p
		}
	}
	return s.plans[0]
}

// HasTier reports whether the tier is part of the table
func (s *Schedule) HasTier(tier Tier) bool {
	for _, p := range s.plans {
		if p.Tier == tier {
			return true
		}
	}
	return false
}

// BaseRate is the monthly percent of a tier
func (s *Schedule) BaseRate(tier Tier) decimal.Decimal {
	return s.Plan(tier).MonthlyRate
}

// DurationBonus returns the bonus for a lock-in length, zero for unknown lengths
func (s *Schedule) DurationBonus(months int) Bonus {
	return s.bonuses[months]
}

// ValidDuration reports whether the schedule offers this lock-in length
func (s *Schedule) ValidDuration(months int) bool {
	_, ok := s.bonuses[months]
	return ok
}

// Durations lists the offered lock-in lengths in ascending order
func (s *Schedule) Durations() []int {
	out := make([]int, 0, len(s.bonuses))
	for m := range s.bonuses {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// TierForAmount picks the highest tier whose minimum the amount reaches.
// Amounts under every minimum still get the lowest tier.
func (s *Schedule) TierForAmount(amount decimal.Decimal) Tier {
	for i := len(s.plans) - 1; i >= 0; i-- {
		if amount.GreaterThanOrEqual(s.plans[i].Min) {
			return s.plans[i].Tier
		}
	}
	return s.plans[0].Tier
}

// Rank orders tiers, lowest is 0. Unknown tiers rank as the lowest.
func (s *Schedule) Rank(tier Tier) int {
	for i, p := range s.plans {
		if p.Tier == tier {
			return i
		}
	}
	return 0
}

// EffectiveRate is base rate plus the duration rate bonus
func (s *Schedule) EffectiveRate(tier Tier, months int) decimal.Decimal {
	return s.BaseRate(tier).Add(s.DurationBonus(months).RatePercent)
}

// CashBonus is the one-off bonus unlocked halfway through the term
func (s *Schedule) CashBonus(amount decimal.Decimal, months int) decimal.Decimal {
	b := s.DurationBonus(months)
	switch {
	case amount.GreaterThanOrEqual(s.cashHigh):
		return b.CashAt1000
	case amount.GreaterThanOrEqual(s.cashLow):
		return b.CashAt500
	default:
		return decimal.Zero
	}
}

// Bounds is the overall investable range
func (s *Schedule) Bounds() (decimal.Decimal, decimal.Decimal) {
	return s.plans[0].Min, s.plans[len(s.plans)-1].Max
}

// InBounds reports whether amount fits the given tier's range
func (s *Schedule) InBounds(tier Tier, amount decimal.Decimal) bool {
	p := s.Plan(tier)
	return amount.GreaterThanOrEqual(p.Min) && amount.LessThanOrEqual(p.Max)
}

// Location is the calendar used for day boundaries
func (s *Schedule) Location() *time.Location {
	return s.location
}

// EarlyWithdrawDays is how long after start an early exit is allowed
func (s *Schedule) EarlyWithdrawDays() int {
	return s.earlyWindow
}
