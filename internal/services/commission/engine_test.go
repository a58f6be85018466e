package commission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTierPercent(t *testing.T) {
	rules := DefaultRules()

	counts := []int{0, 1, 2, 3, 4, 5, 6, 9, 10, 15}
	want := []int64{3, 3, 4, 4, 5, 5, 6, 6, 7, 7}

	for i, c := range counts {
		got := rules.TierPercent(c)
		assert.True(t, got.Equal(decimal.NewFromInt(want[i])), "count %d: expected %d, got %s", c, want[i], got)
	}

	// never decreasing
	prev := rules.TierPercent(0)
	for c := 1; c <= 50; c++ {
		cur := rules.TierPercent(c)
		assert.False(t, cur.LessThan(prev), "tier percent dropped at %d", c)
		prev = cur
	}
}

func TestNewRulesRejectsBadSteps(t *testing.T) {
	_, err := NewRules([]Step{{MinReferrals: 1, Percent: d("3")}}, d("3"), 31)
	assert.Error(t, err)

	_, err = NewRules([]Step{
		{MinReferrals: 0, Percent: d("5")},
		{MinReferrals: 3, Percent: d("4")},
	}, d("3"), 31)
	assert.Error(t, err)

	_, err = NewRules(nil, d("3"), 31)
	assert.Error(t, err)
}

type tree struct {
	st       *store.MemoryStore
	engine   *Engine
	referrer uuid.UUID
	a, b, c  uuid.UUID
	invA     uuid.UUID
	invB     uuid.UUID
	invC     uuid.UUID
}

func addUser(t *testing.T, st *store.MemoryStore, code string, referredBy *uuid.UUID) uuid.UUID {
	t.Helper()
	u := &models.User{Email: code + "@example.com", ReferralCode: code, ReferredBy: referredBy}
	u.CreatedAt = now.AddDate(0, -2, 0)
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u.ID
}

func addInvestment(t *testing.T, st *store.MemoryStore, userID uuid.UUID, amount string, status models.InvestmentStatus, age int) uuid.UUID {
	t.Helper()
	inv := &models.Investment{UserID: userID, Amount: d(amount), Status: status, PlanTier: "Starter"}
	inv.CreatedAt = now.AddDate(0, 0, -age)
	require.NoError(t, st.CreateInvestment(context.Background(), inv))
	return inv.ID
}

// referrer -> a, b (level 1); a -> c (level 2)
func newTree(t *testing.T) *tree {
	st := store.NewMemoryStore()
	tr := &tree{st: st}
	tr.referrer = addUser(t, st, "root", nil)
	tr.a = addUser(t, st, "alice", &tr.referrer)
	tr.b = addUser(t, st, "bob", &tr.referrer)
	tr.c = addUser(t, st, "carol", &tr.a)

	tr.invA = addInvestment(t, st, tr.a, "1000", models.InvestmentActive, 32)
	tr.invB = addInvestment(t, st, tr.b, "2000", models.InvestmentActive, 20)
	tr.invC = addInvestment(t, st, tr.c, "500", models.InvestmentCompleted, 40)
	addInvestment(t, st, tr.a, "700", models.InvestmentPending, 60)
	addInvestment(t, st, tr.b, "900", models.InvestmentCancelled, 60)

	tr.engine = NewEngine(st, DefaultRules(), logger.NewSilent()).
		WithClock(func() time.Time { return now })
	return tr
}

func findLine(t *testing.T, lines []Line, investmentID uuid.UUID) Line {
	t.Helper()
	for _, l := range lines {
		if l.InvestmentID == investmentID {
			return l
		}
	}
	t.Fatalf("no line for investment %s", investmentID)
	return Line{}
}

func TestGetAvailableActions(t *testing.T) {
	tr := newTree(t)

	actions, err := tr.engine.GetAvailableActions(context.Background(), tr.referrer)
	require.NoError(t, err)

	assert.Equal(t, 2, actions.Level1Count)
	assert.Equal(t, 1, actions.Level2Count)
	assert.True(t, actions.TierPercent.Equal(d("4")))
	require.Len(t, actions.Items, 3)

	lineA := findLine(t, actions.Items, tr.invA)
	assert.Equal(t, StateAvailable, lineA.State)
	assert.Equal(t, 1, lineA.Level)
	assert.True(t, lineA.Amount.Equal(d("40")))

	// created 20 days ago: locked
	lineB := findLine(t, actions.Items, tr.invB)
	assert.Equal(t, StateLocked, lineB.State)
	assert.Equal(t, 11, lineB.DaysRemaining)
	assert.True(t, lineB.Amount.Equal(d("80")))

	lineC := findLine(t, actions.Items, tr.invC)
	assert.Equal(t, 2, lineC.Level)
	assert.True(t, lineC.Percent.Equal(d("3")))
	assert.True(t, lineC.Amount.Equal(d("15")))

	assert.True(t, actions.AvailableAmount.Equal(d("55")))
	assert.True(t, actions.LockedAmount.Equal(d("80")))
	assert.Equal(t, 2, actions.AvailableCount)
}

func TestWithdrawnAndClaimedEarningsLeaveTheSums(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()

	earning, err := tr.engine.RecordOrRefreshEarning(ctx, tr.referrer, tr.c, tr.invC, d("15"), d("3"), 2)
	require.NoError(t, err)
	require.NoError(t, tr.st.MarkEarningWithdrawn(ctx, earning.ID, now))

	require.NoError(t, tr.st.CreateWithdrawal(ctx, &models.WithdrawalRequest{
		Kind:           models.WithdrawalReferral,
		UserID:         tr.referrer,
		ReferralUserID: &tr.a,
		InvestmentID:   tr.invA,
		Amount:         d("40"),
		Status:         models.WithdrawalPending,
	}))

	actions, err := tr.engine.GetAvailableActions(ctx, tr.referrer)
	require.NoError(t, err)

	assert.Equal(t, StateWithdrawn, findLine(t, actions.Items, tr.invC).State)
	assert.Equal(t, StateClaimed, findLine(t, actions.Items, tr.invA).State)
	assert.True(t, actions.AvailableAmount.IsZero())
	assert.True(t, actions.ClaimedAmount.Equal(d("40")))
	assert.True(t, actions.LockedAmount.Equal(d("80")))

	available, err := tr.engine.CollectAvailableEarnings(ctx, tr.referrer)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestReferralLockReleasesAfterRequiredDays(t *testing.T) {
	tr := newTree(t)

	tr.engine.WithClock(func() time.Time { return now.AddDate(0, 0, 11) })
	available, err := tr.engine.CollectAvailableEarnings(context.Background(), tr.referrer)
	require.NoError(t, err)
	assert.Len(t, available, 3)
}

func TestRecordOrRefreshEarningOverwrites(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()

	first, err := tr.engine.RecordOrRefreshEarning(ctx, tr.referrer, tr.a, tr.invA, d("30"), d("3"), 1)
	require.NoError(t, err)

	second, err := tr.engine.RecordOrRefreshEarning(ctx, tr.referrer, tr.a, tr.invA, d("70"), d("7"), 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	earnings, err := tr.st.ListEarningsByReferrer(ctx, tr.referrer)
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.True(t, earnings[0].Amount.Equal(d("70")))
	assert.True(t, earnings[0].Percentage.Equal(d("7")))
}

func TestStats(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()

	earning, err := tr.engine.RecordOrRefreshEarning(ctx, tr.referrer, tr.c, tr.invC, d("15"), d("3"), 2)
	require.NoError(t, err)
	require.NoError(t, tr.st.MarkEarningWithdrawn(ctx, earning.ID, now))

	stats, err := tr.engine.Stats(ctx, tr.referrer)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalReferrals)
	assert.True(t, stats.TierPercent.Equal(d("4")))
	assert.True(t, stats.TotalWithdrawn.Equal(d("15")))
	assert.True(t, stats.Available.Equal(d("40")))
	assert.True(t, stats.Locked.Equal(d("80")))
	assert.True(t, stats.TotalEarned.Equal(d("135")))
	assert.Equal(t, 1, stats.EarningsCount)
	assert.Equal(t, 1, stats.WithdrawnEarnings)
}

func TestActionsForUserWithoutReferrals(t *testing.T) {
	tr := newTree(t)

	actions, err := tr.engine.GetAvailableActions(context.Background(), tr.c)
	require.NoError(t, err)
	assert.Empty(t, actions.Items)
	assert.True(t, actions.TierPercent.Equal(d("3")))
	assert.True(t, actions.AvailableAmount.IsZero())
}
