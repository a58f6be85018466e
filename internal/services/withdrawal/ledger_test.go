package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/store"
	"github.com/stakevault/backend/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const address = "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recorder struct {
	mu      sync.Mutex
	actions []approval.Action
	err     error
}

func (r *recorder) Notify(_ context.Context, a approval.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.actions = append(r.actions, a)
	return nil
}

type fixture struct {
	st       *store.MemoryStore
	ledger   *Ledger
	notifier *recorder
	userID   uuid.UUID
	inv      *models.Investment
}

func newFixture(t *testing.T) *fixture {
	st := store.NewMemoryStore()
	log := logger.NewSilent()
	clock := func() time.Time { return now }
	notifier := &recorder{}

	engine := commission.NewEngine(st, commission.DefaultRules(), log).WithClock(clock)
	ledger := NewLedger(st, engine, validation.NewValidator(), notifier, log).WithClock(clock)

	start := now.AddDate(0, 0, -30)
	end := start.AddDate(0, 3, 0)
	inv := &models.Investment{
		UserID:       uuid.New(),
		PlanTier:     "Starter",
		Amount:       d("1000"),
		Duration:     3,
		ROI:          d("14"),
		EffectiveROI: d("14"),
		StartDate:    &start,
		EndDate:      &end,
		Status:       models.InvestmentActive,
	}
	inv.CreatedAt = start
	require.NoError(t, st.CreateInvestment(context.Background(), inv))

	return &fixture{st: st, ledger: ledger, notifier: notifier, userID: inv.UserID, inv: inv}
}

func (f *fixture) partial(amount string) Claim {
	return Claim{
		Kind:         models.WithdrawalPartial,
		UserID:       f.userID,
		InvestmentID: f.inv.ID,
		Amount:       d(amount),
		Address:      address,
	}
}

func TestCreateRequestGuardsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.ledger.CreateRequest(ctx, f.partial("50"))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, req.Status)
	assert.Equal(t, now, req.CreatedAt)
	require.Len(t, f.notifier.actions, 1)
	assert.Equal(t, approval.KindWithdrawal, f.notifier.actions[0].Kind)
	assert.Equal(t, req.ID, f.notifier.actions[0].ID)

	_, err = f.ledger.CreateRequest(ctx, f.partial("20"))
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePendingRequest)

	// a different kind on the same investment is a separate claim
	bonus := f.partial("200")
	bonus.Kind = models.WithdrawalBonus
	_, err = f.ledger.CreateRequest(ctx, bonus)
	assert.NoError(t, err)

	_, err = f.ledger.Reject(ctx, req.ID, "wrong address", "ops")
	require.NoError(t, err)

	_, err = f.ledger.CreateRequest(ctx, f.partial("20"))
	assert.NoError(t, err)
}

func TestCreateRequestValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := f.partial("50")
	bad.Address = "nope"
	_, err := f.ledger.CreateRequest(ctx, bad)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.ledger.CreateRequest(ctx, f.partial("0"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApprovePartialOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.ledger.CreateRequest(ctx, f.partial("100"))
	require.NoError(t, err)

	approved, err := f.ledger.Approve(ctx, req.ID, "ops")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, approved.Status)
	require.NotNil(t, approved.ProcessedAt)

	inv, err := f.st.GetInvestment(ctx, f.inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.WithdrawnProfits.Equal(d("100")))

	_, err = f.ledger.Approve(ctx, req.ID, "ops")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = f.ledger.Reject(ctx, req.ID, "late", "ops")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	inv, err = f.st.GetInvestment(ctx, f.inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.WithdrawnProfits.Equal(d("100")))

	history := f.st.WithdrawalHistory(req.ID)
	require.Len(t, history, 2)
	assert.Equal(t, models.WithdrawalPending, history[0].Status)
	assert.Equal(t, models.WithdrawalCompleted, history[1].Status)

	logs := f.st.AuditLogs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "withdrawal", logs[len(logs)-1].EventType)
}

func TestApproveRechecksAvailableProfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 30 days at 14% on 1000 is 140
	req, err := f.ledger.CreateRequest(ctx, f.partial("150"))
	require.NoError(t, err)

	_, err = f.ledger.Approve(ctx, req.ID, "ops")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	status, err := f.ledger.Status(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, status.Status)

	inv, err := f.st.GetInvestment(ctx, f.inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.WithdrawnProfits.IsZero())
}

func TestApproveEarlyClosesInvestment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.ledger.CreateRequest(ctx, Claim{
		Kind:           models.WithdrawalEarly,
		UserID:         f.userID,
		InvestmentID:   f.inv.ID,
		Amount:         d("1000"),
		EarnedInterest: d("140"),
		Address:        address,
	})
	require.NoError(t, err)

	_, err = f.ledger.Approve(ctx, req.ID, "ops")
	require.NoError(t, err)

	inv, err := f.st.GetInvestment(ctx, f.inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvestmentCompleted, inv.Status)
	assert.True(t, inv.IsClosed())
	assert.True(t, inv.AccumulatedInterest.IsZero())

	// nothing more can be paid from a closed investment
	_, err = f.ledger.CreateRequest(ctx, f.partial("10"))
	require.NoError(t, err)
	pending, err := f.ledger.ListForUser(ctx, f.userID)
	require.NoError(t, err)
	var partialID uuid.UUID
	for _, r := range pending {
		if r.Kind == models.WithdrawalPartial {
			partialID = r.ID
		}
	}
	_, err = f.ledger.Approve(ctx, partialID, "ops")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestRejectKeepsProfitAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.ledger.CreateRequest(ctx, f.partial("100"))
	require.NoError(t, err)

	rejected, err := f.ledger.Reject(ctx, req.ID, "address mismatch", "ops")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, rejected.Status)
	assert.Equal(t, "address mismatch", rejected.Reason)

	inv, err := f.st.GetInvestment(ctx, f.inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.WithdrawnProfits.IsZero())
}

func TestNotifierFailureKeepsRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.err = errors.New("telegram down")

	req, err := f.ledger.CreateRequest(ctx, f.partial("50"))
	assert.ErrorIs(t, err, apperrors.ErrExternalApproval)
	require.NotNil(t, req)

	stored, err := f.ledger.Status(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, stored.Status)

	logs := f.st.AuditLogs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "error", logs[len(logs)-1].Severity)
}

func TestStatusUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Status(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func addUser(t *testing.T, st *store.MemoryStore, code string, referredBy *uuid.UUID) uuid.UUID {
	t.Helper()
	u := &models.User{Email: code + "@example.com", ReferralCode: code, ReferredBy: referredBy}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u.ID
}

func addReferredInvestment(t *testing.T, st *store.MemoryStore, userID uuid.UUID, amount string, age int) uuid.UUID {
	t.Helper()
	inv := &models.Investment{UserID: userID, Amount: d(amount), Status: models.InvestmentActive, PlanTier: "Starter"}
	inv.CreatedAt = now.AddDate(0, 0, -age)
	require.NoError(t, st.CreateInvestment(context.Background(), inv))
	return inv.ID
}

func TestRequestReferralWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	referrer := addUser(t, f.st, "root", nil)
	a := addUser(t, f.st, "alice", &referrer)
	c := addUser(t, f.st, "carol", &a)
	invA := addReferredInvestment(t, f.st, a, "1000", 40)
	addReferredInvestment(t, f.st, c, "2000", 35)
	addReferredInvestment(t, f.st, a, "5000", 5)

	batch, err := f.ledger.RequestReferralWithdrawal(ctx, referrer, address)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 2)
	// 3% of 1000 on level 1, 3% of 2000 on level 2
	assert.True(t, batch.Total.Equal(d("90")))
	for _, r := range batch.Requests {
		require.NotNil(t, r.BatchID)
		assert.Equal(t, batch.ID, *r.BatchID)
		assert.NotNil(t, r.EarningID)
	}
	assert.Len(t, f.notifier.actions, 2)

	_, err = f.ledger.RequestReferralWithdrawal(ctx, referrer, address)
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePendingRequest)

	var first, second models.WithdrawalRequest
	for _, r := range batch.Requests {
		if r.InvestmentID == invA {
			first = r
		} else {
			second = r
		}
	}

	_, err = f.ledger.Approve(ctx, first.ID, "ops")
	require.NoError(t, err)
	earning, err := f.st.GetEarning(ctx, *first.EarningID)
	require.NoError(t, err)
	assert.True(t, earning.Withdrawn)

	_, err = f.ledger.Reject(ctx, second.ID, "check", "ops")
	require.NoError(t, err)

	// the rejected earning can be claimed again, the paid one cannot
	again, err := f.ledger.RequestReferralWithdrawal(ctx, referrer, address)
	require.NoError(t, err)
	require.Len(t, again.Requests, 1)
	assert.Equal(t, second.InvestmentID, again.Requests[0].InvestmentID)
	assert.Equal(t, *second.EarningID, *again.Requests[0].EarningID)
}

func TestRequestReferralWithdrawalWithNothingAvailable(t *testing.T) {
	f := newFixture(t)

	referrer := addUser(t, f.st, "root", nil)
	a := addUser(t, f.st, "alice", &referrer)
	addReferredInvestment(t, f.st, a, "1000", 3)

	_, err := f.ledger.RequestReferralWithdrawal(context.Background(), referrer, address)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
