package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/services/rates"
)

type planFile struct {
	Tier        string `mapstructure:"tier"`
	MonthlyRate string `mapstructure:"monthly_rate"`
	Min         string `mapstructure:"min"`
	Max         string `mapstructure:"max"`
}

type durationFile struct {
	Months     int    `mapstructure:"months"`
	RateBonus  string `mapstructure:"rate_bonus"`
	CashAt500  string `mapstructure:"cash_at_500"`
	CashAt1000 string `mapstructure:"cash_at_1000"`
}

type stepFile struct {
	MinReferrals int    `mapstructure:"min_referrals"`
	Percent      string `mapstructure:"percent"`
}

type ratesFile struct {
	Timezone          string         `mapstructure:"timezone"`
	EarlyWithdrawDays int            `mapstructure:"early_withdraw_days"`
	CashBonusLow      string         `mapstructure:"cash_bonus_low"`
	CashBonusHigh     string         `mapstructure:"cash_bonus_high"`
	Plans             []planFile     `mapstructure:"plans"`
	Durations         []durationFile `mapstructure:"durations"`
	Commission        struct {
		Level2Percent string     `mapstructure:"level2_percent"`
		RequiredDays  int        `mapstructure:"required_days"`
		Steps         []stepFile `mapstructure:"steps"`
	} `mapstructure:"commission"`
}

// LoadRates reads the rate table and commission rules from a YAML file.
// A missing file yields the built-in defaults; sections left out of the
// file keep their defaults too.
func LoadRates(path string) (*rates.Schedule, commission.Rules, error) {
	if path == "" {
		return rates.DefaultSchedule(), commission.DefaultRules(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return rates.DefaultSchedule(), commission.DefaultRules(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("early_withdraw_days", 30)
	if err := v.ReadInConfig(); err != nil {
		return nil, commission.Rules{}, fmt.Errorf("failed to read rates file: %w", err)
	}

	var file ratesFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, commission.Rules{}, fmt.Errorf("failed to decode rates file: %w", err)
	}

	schedule, err := file.schedule()
	if err != nil {
		return nil, commission.Rules{}, err
	}
	rules, err := file.rules()
	if err != nil {
		return nil, commission.Rules{}, err
	}
	return schedule, rules, nil
}

func (f ratesFile) schedule() (*rates.Schedule, error) {
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", f.Timezone, err)
	}

	opts := rates.Options{Location: loc, EarlyWithdrawDays: f.EarlyWithdrawDays}
	if opts.CashBonusLow, err = parseDecimal("cash_bonus_low", f.CashBonusLow); err != nil {
		return nil, err
	}
	if opts.CashBonusHigh, err = parseDecimal("cash_bonus_high", f.CashBonusHigh); err != nil {
		return nil, err
	}

	plans := rates.DefaultPlans()
	if len(f.Plans) > 0 {
		plans = make([]rates.Plan, 0, len(f.Plans))
		for _, p := range f.Plans {
			plan := rates.Plan{Tier: rates.Tier(p.Tier)}
			if plan.MonthlyRate, err = parseDecimal(p.Tier+".monthly_rate", p.MonthlyRate); err != nil {
				return nil, err
			}
			if plan.Min, err = parseDecimal(p.Tier+".min", p.Min); err != nil {
				return nil, err
			}
			if plan.Max, err = parseDecimal(p.Tier+".max", p.Max); err != nil {
				return nil, err
			}
			plans = append(plans, plan)
		}
	}

	bonuses := rates.DefaultBonuses()
	if len(f.Durations) > 0 {
		bonuses = make(map[int]rates.Bonus, len(f.Durations))
		for _, d := range f.Durations {
			var b rates.Bonus
			name := fmt.Sprintf("durations.%d", d.Months)
			if b.RatePercent, err = parseDecimal(name+".rate_bonus", d.RateBonus); err != nil {
				return nil, err
			}
			if b.CashAt500, err = parseDecimal(name+".cash_at_500", d.CashAt500); err != nil {
				return nil, err
			}
			if b.CashAt1000, err = parseDecimal(name+".cash_at_1000", d.CashAt1000); err != nil {
				return nil, err
			}
			bonuses[d.Months] = b
		}
	}

	schedule, err := rates.NewSchedule(plans, bonuses, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid rate table: %w", err)
	}
	return schedule, nil
}

func (f ratesFile) rules() (commission.Rules, error) {
	c := f.Commission
	if len(c.Steps) == 0 && c.Level2Percent == "" && c.RequiredDays == 0 {
		return commission.DefaultRules(), nil
	}

	defaults := commission.DefaultRules()
	level2 := defaults.Level2Percent()
	if c.Level2Percent != "" {
		var err error
		if level2, err = parseDecimal("commission.level2_percent", c.Level2Percent); err != nil {
			return commission.Rules{}, err
		}
	}
	days := c.RequiredDays
	if days == 0 {
		days = defaults.RequiredDays()
	}

	steps := defaults.Steps()
	if len(c.Steps) > 0 {
		steps = make([]commission.Step, 0, len(c.Steps))
		for _, s := range c.Steps {
			pct, err := parseDecimal(fmt.Sprintf("commission.steps.%d", s.MinReferrals), s.Percent)
			if err != nil {
				return commission.Rules{}, err
			}
			steps = append(steps, commission.Step{MinReferrals: s.MinReferrals, Percent: pct})
		}
	}

	rules, err := commission.NewRules(steps, level2, days)
	if err != nil {
		return commission.Rules{}, fmt.Errorf("invalid commission rules: %w", err)
	}
	return rules, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}
