package commission

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Step grants Percent once a referrer has at least MinReferrals direct referrals
type Step struct {
	MinReferrals int
	Percent      decimal.Decimal
}

// Rules is the commission configuration. Percentages are in percent units.
type Rules struct {
	steps         []Step
	level2Percent decimal.Decimal
	requiredDays  int
}

// NewRules sorts the steps and checks they start at zero referrals
func NewRules(steps []Step, level2Percent decimal.Decimal, requiredDays int) (Rules, error) {
	if len(steps) == 0 {
		return Rules{}, fmt.Errorf("commission rules need at least one step")
	}
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinReferrals < sorted[j].MinReferrals })

	if sorted[0].MinReferrals != 0 {
		return Rules{}, fmt.Errorf("lowest commission step must start at 0 referrals, got %d", sorted[0].MinReferrals)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Percent.LessThan(sorted[i-1].Percent) {
			return Rules{}, fmt.Errorf("commission steps must not decrease (%d referrals)", sorted[i].MinReferrals)
		}
	}
	if requiredDays < 0 {
		return Rules{}, fmt.Errorf("required days must not be negative")
	}

	return Rules{steps: sorted, level2Percent: level2Percent, requiredDays: requiredDays}, nil
}

// DefaultRules is 3/4/5/6/7% for 0/2/4/6/10 direct referrals, 3% on level 2,
// released 31 days after the investment was created.
func DefaultRules() Rules {
	rules, _ := NewRules([]Step{
		{MinReferrals: 0, Percent: decimal.NewFromInt(3)},
		{MinReferrals: 2, Percent: decimal.NewFromInt(4)},
		{MinReferrals: 4, Percent: decimal.NewFromInt(5)},
		{MinReferrals: 6, Percent: decimal.NewFromInt(6)},
		{MinReferrals: 10, Percent: decimal.NewFromInt(7)},
	}, decimal.NewFromInt(3), 31)
	return rules
}

// TierPercent is the level-1 percent for a referrer with level1Count direct referrals
func (r Rules) TierPercent(level1Count int) decimal.Decimal {
	pct := r.steps[0].Percent
	for _, s := range r.steps {
		if level1Count >= s.MinReferrals {
			pct = s.Percent
		}
	}
	return pct
}

// Level2Percent is the flat percent paid on second level investments
func (r Rules) Level2Percent() decimal.Decimal {
	return r.level2Percent
}

// RequiredDays is how long a commission stays locked
func (r Rules) RequiredDays() int {
	return r.requiredDays
}

// Steps returns a copy of the level-1 steps, lowest first
func (r Rules) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}
