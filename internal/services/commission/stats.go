package commission

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stats summarises a referrer's commissions
type Stats struct {
	Level1Count       int             `json:"level1_referrals"`
	Level2Count       int             `json:"level2_referrals"`
	TotalReferrals    int             `json:"total_referrals"`
	TierPercent       decimal.Decimal `json:"tier_percent"`
	TotalEarned       decimal.Decimal `json:"total_earned"`
	TotalWithdrawn    decimal.Decimal `json:"total_withdrawn"`
	Available         decimal.Decimal `json:"available"`
	Locked            decimal.Decimal `json:"locked"`
	Pending           decimal.Decimal `json:"pending"`
	EarningsCount     int             `json:"earnings_count"`
	WithdrawnEarnings int             `json:"withdrawn_earnings"`
}

// Stats computes totals for the referrer. TotalWithdrawn sums the stored
// earning rows that were paid out; everything else is computed live.
func (e *Engine) Stats(ctx context.Context, referrerID uuid.UUID) (*Stats, error) {
	actions, err := e.GetAvailableActions(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	earnings, err := e.store.ListEarningsByReferrer(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Level1Count:    actions.Level1Count,
		Level2Count:    actions.Level2Count,
		TotalReferrals: actions.Level1Count + actions.Level2Count,
		TierPercent:    actions.TierPercent,
		TotalEarned:    decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		Available:      actions.AvailableAmount,
		Locked:         actions.LockedAmount,
		Pending:        actions.ClaimedAmount,
		EarningsCount:  len(earnings),
	}

	for _, earning := range earnings {
		if earning.Withdrawn {
			stats.TotalWithdrawn = stats.TotalWithdrawn.Add(earning.Amount)
			stats.WithdrawnEarnings++
		}
	}
	stats.TotalEarned = stats.TotalWithdrawn.
		Add(stats.Available).
		Add(stats.Locked).
		Add(stats.Pending)

	return stats, nil
}
