package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/services/rates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_ADMIN_CHAT_IDS", "100, 200,bad,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("JOB_WORKERS", "nope")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Telegram.Enabled())
	assert.Equal(t, []int64{100, 200}, cfg.Telegram.AdminChatIDs)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRatesDefaultsWhenMissing(t *testing.T) {
	schedule, rules, err := LoadRates(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, schedule.BaseRate(rates.Advanced).Equal(decimal.NewFromInt(17)))
	assert.Equal(t, 31, rules.RequiredDays())
}

func TestLoadRatesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Berlin
early_withdraw_days: 14
plans:
  - tier: Starter
    monthly_rate: "15"
    min: "50"
    max: "999"
  - tier: Advanced
    monthly_rate: 18.5
    min: 1000
    max: 5000
durations:
  - months: 3
  - months: 6
    rate_bonus: "2"
    cash_at_500: "100"
    cash_at_1000: "300"
commission:
  level2_percent: "2"
  steps:
    - min_referrals: 0
      percent: "5"
    - min_referrals: 3
      percent: "8"
`), 0o600))

	schedule, rules, err := LoadRates(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", schedule.Location().String())
	assert.Equal(t, 14, schedule.EarlyWithdrawDays())
	assert.True(t, schedule.BaseRate(rates.Starter).Equal(decimal.NewFromInt(15)))
	assert.True(t, schedule.BaseRate(rates.Advanced).Equal(decimal.RequireFromString("18.5")))
	assert.False(t, schedule.HasTier(rates.Elite))
	assert.True(t, schedule.ValidDuration(6))
	assert.False(t, schedule.ValidDuration(12))
	assert.True(t, schedule.EffectiveRate(rates.Starter, 6).Equal(decimal.NewFromInt(17)))

	assert.True(t, rules.TierPercent(2).Equal(decimal.NewFromInt(5)))
	assert.True(t, rules.TierPercent(3).Equal(decimal.NewFromInt(8)))
	assert.True(t, rules.Level2Percent().Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 31, rules.RequiredDays())
}

func TestLoadRatesRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"decimal":  "plans:\n  - tier: Starter\n    monthly_rate: abc\n    min: 1\n    max: 2\n",
		"overlap":  "plans:\n  - {tier: A, monthly_rate: 1, min: 1, max: 10}\n  - {tier: B, monthly_rate: 2, min: 5, max: 20}\n",
		"timezone": "timezone: Mars/Base\n",
		"steps":    "commission:\n  steps:\n    - {min_referrals: 1, percent: 3}\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rates.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, _, err := LoadRates(path)
			assert.Error(t, err)
		})
	}
}
