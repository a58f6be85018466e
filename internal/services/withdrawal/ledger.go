// Package withdrawal books withdrawal claims and applies them once an
// operator approves. A request is paid at most once.
package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/security/audit"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/store"
	"github.com/stakevault/backend/internal/validation"
)

// Claim is a withdrawal about to be booked
type Claim struct {
	Kind             models.WithdrawalKind
	UserID           uuid.UUID
	InvestmentID     uuid.UUID
	ReferralUserID   *uuid.UUID
	EarningID        *uuid.UUID
	BatchID          *uuid.UUID
	Amount           decimal.Decimal
	EarnedInterest   decimal.Decimal
	WithdrawnProfits decimal.Decimal
	DaysInvested     int
	Address          string
}

// Batch is the result of a bulk referral withdrawal
type Batch struct {
	ID       uuid.UUID                  `json:"batch_id"`
	Total    decimal.Decimal            `json:"total"`
	Requests []models.WithdrawalRequest `json:"requests"`
}

// Ledger is the withdrawal ledger
type Ledger struct {
	store      store.Store
	commission *commission.Engine
	addresses  validation.AddressValidator
	notifier   approval.Notifier
	audit      *audit.Logger
	now        func() time.Time
	log        *logger.Logger
}

// NewLedger creates a new withdrawal ledger
func NewLedger(st store.Store, engine *commission.Engine, addresses validation.AddressValidator, notifier approval.Notifier, log *logger.Logger) *Ledger {
	return &Ledger{
		store:      st,
		commission: engine,
		addresses:  addresses,
		notifier:   notifier,
		audit:      audit.NewLogger(st),
		now:        time.Now,
		log:        log.Component("withdrawal"),
	}
}

// WithClock replaces the time source
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	l.audit.WithClock(now)
	return l
}

// CreateRequest books a claim and asks the operator to approve it. The
// request is persisted even when the notifier fails; that failure comes
// back wrapped in apperrors.ErrExternalApproval next to the request.
func (l *Ledger) CreateRequest(ctx context.Context, claim Claim) (*models.WithdrawalRequest, error) {
	if _, err := l.addresses.Validate(claim.Address); err != nil {
		return nil, err
	}

	var req *models.WithdrawalRequest
	err := store.Transact(ctx, l.store, func(tx store.Repository) error {
		var err error
		req, err = l.Create(ctx, tx, claim)
		return err
	})
	if err != nil {
		return nil, err
	}

	return req, l.Announce(ctx, req)
}

// Create runs the duplicate guards and inserts the request through tx.
// Callers composing a larger transaction announce the request after commit.
func (l *Ledger) Create(ctx context.Context, tx store.Repository, claim Claim) (*models.WithdrawalRequest, error) {
	if !claim.Amount.IsPositive() {
		return nil, apperrors.Validation("withdrawal amount must be greater than 0")
	}
	if err := l.guard(ctx, tx, claim); err != nil {
		return nil, err
	}

	req := &models.WithdrawalRequest{
		Kind:             claim.Kind,
		UserID:           claim.UserID,
		InvestmentID:     claim.InvestmentID,
		ReferralUserID:   claim.ReferralUserID,
		EarningID:        claim.EarningID,
		BatchID:          claim.BatchID,
		Amount:           claim.Amount,
		EarnedInterest:   claim.EarnedInterest,
		WithdrawnProfits: claim.WithdrawnProfits,
		DaysInvested:     claim.DaysInvested,
		Address:          claim.Address,
		Status:           models.WithdrawalPending,
	}
	req.CreatedAt = l.now()

	if err := tx.CreateWithdrawal(ctx, req); err != nil {
		return nil, err
	}
	if err := l.history(ctx, tx, req, "requested"); err != nil {
		return nil, err
	}
	return req, nil
}

// guard allows one PENDING request per (investment, kind) and, for
// referral claims, no PENDING or COMPLETED request for the same
// (user, referred user, investment).
func (l *Ledger) guard(ctx context.Context, tx store.Repository, claim Claim) error {
	filter := store.WithdrawalFilter{
		Kind:         claim.Kind,
		InvestmentID: &claim.InvestmentID,
		Statuses:     []models.WithdrawalStatus{models.WithdrawalPending},
	}
	if claim.Kind == models.WithdrawalReferral {
		if claim.ReferralUserID == nil {
			return apperrors.Validation("referral withdrawal needs the referred user")
		}
		filter.UserID = &claim.UserID
		filter.ReferralUserID = claim.ReferralUserID
		filter.Statuses = []models.WithdrawalStatus{models.WithdrawalPending, models.WithdrawalCompleted}
	}

	n, err := tx.CountWithdrawals(ctx, filter)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.DuplicatePending("a %s withdrawal for investment %s is already pending or paid", claim.Kind, claim.InvestmentID)
	}
	return nil
}

// RequestReferralWithdrawal claims every available referral earning of the
// referrer in one transaction. Each earning is refreshed to the current
// commission and gets its own request; all requests share a batch id.
func (l *Ledger) RequestReferralWithdrawal(ctx context.Context, referrerID uuid.UUID, address string) (*Batch, error) {
	if _, err := l.addresses.Validate(address); err != nil {
		return nil, err
	}

	var batch *Batch
	err := store.Transact(ctx, l.store, func(tx store.Repository) error {
		asOf := l.now()
		actions, err := l.commission.Actions(ctx, tx, referrerID, asOf)
		if err != nil {
			return err
		}

		lines := actions.Available()
		if len(lines) == 0 {
			if actions.ClaimedAmount.IsPositive() {
				return apperrors.DuplicatePending("referral earnings are already waiting for approval")
			}
			return apperrors.Validation("no referral earnings available for withdrawal")
		}

		batch = &Batch{ID: uuid.New(), Total: decimal.Zero}
		for _, line := range lines {
			earning, err := l.commission.Refresh(ctx, tx, referrerID, line)
			if err != nil {
				return err
			}

			referred := line.ReferralUserID
			req, err := l.Create(ctx, tx, Claim{
				Kind:           models.WithdrawalReferral,
				UserID:         referrerID,
				InvestmentID:   line.InvestmentID,
				ReferralUserID: &referred,
				EarningID:      &earning.ID,
				BatchID:        &batch.ID,
				Amount:         earning.Amount,
				DaysInvested:   line.DaysPassed,
				Address:        address,
			})
			if err != nil {
				return err
			}
			batch.Requests = append(batch.Requests, *req)
			batch.Total = batch.Total.Add(req.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("user_id", referrerID.String()).
		Str("batch_id", batch.ID.String()).
		Str("total", batch.Total.StringFixed(2)).
		Int("requests", len(batch.Requests)).
		Msg("Referral withdrawal requested")

	var notifyErr error
	for i := range batch.Requests {
		if err := l.Announce(ctx, &batch.Requests[i]); err != nil && notifyErr == nil {
			notifyErr = err
		}
	}
	return batch, notifyErr
}

// Announce sends the approval action for req. A failure is logged and
// audited and returned as apperrors.ErrExternalApproval; the request stays.
func (l *Ledger) Announce(ctx context.Context, req *models.WithdrawalRequest) error {
	action := approval.Action{
		Kind:    approval.KindWithdrawal,
		ID:      req.ID,
		UserID:  req.UserID,
		Summary: fmt.Sprintf("%s withdrawal of %s USDT", req.Kind, req.Amount.StringFixed(2)),
		Fields: []approval.Field{
			{Label: "Investment", Value: req.InvestmentID.String()},
			{Label: "Address", Value: req.Address},
		},
	}
	if req.Kind == models.WithdrawalEarly {
		action.Fields = append(action.Fields, approval.Field{Label: "Forfeited interest", Value: req.EarnedInterest.StringFixed(2)})
	}

	if err := l.notifier.Notify(ctx, action); err != nil {
		l.log.Error().Err(err).Str("withdrawal_id", req.ID.String()).Msg("Failed to notify approver")
		_ = l.audit.LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeApproval,
			Severity:    audit.SeverityError,
			Description: "approval notification failed",
			UserID:      &req.UserID,
			TargetID:    &req.ID,
			Metadata:    map[string]interface{}{"error": err.Error()},
		})
		return apperrors.ExternalApproval(err)
	}
	return nil
}

// Approve pays out a PENDING request and applies its effect in the same
// transaction. Processed requests fail with apperrors.ErrInvalidState.
func (l *Ledger) Approve(ctx context.Context, requestID uuid.UUID, actor string) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := store.Transact(ctx, l.store, func(tx store.Repository) error {
		var err error
		req, err = tx.GetWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return apperrors.InvalidState("withdrawal request %s already %s", req.ID, req.Status)
		}

		asOf := l.now()
		if err := l.apply(ctx, tx, req, asOf); err != nil {
			return err
		}

		req.Status = models.WithdrawalCompleted
		req.ProcessedAt = &asOf
		if err := tx.SaveWithdrawal(ctx, req); err != nil {
			return err
		}
		if err := l.history(ctx, tx, req, "approved by "+actor); err != nil {
			return err
		}
		return l.audit.Tx(tx).Log(ctx, audit.EventTypeWithdrawal, "withdrawal approved", req.ID, map[string]interface{}{
			"kind":   string(req.Kind),
			"amount": req.Amount.String(),
			"actor":  actor,
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("withdrawal_id", req.ID.String()).
		Str("kind", string(req.Kind)).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("Withdrawal approved")
	return req, nil
}

// apply books the effect of an approved request on the investment or earning
func (l *Ledger) apply(ctx context.Context, tx store.Repository, req *models.WithdrawalRequest, asOf time.Time) error {
	if req.Kind == models.WithdrawalReferral {
		if req.EarningID == nil {
			return apperrors.Invariant("referral withdrawal %s has no earning", req.ID)
		}
		return tx.MarkEarningWithdrawn(ctx, *req.EarningID, asOf)
	}

	inv, err := tx.GetInvestmentForUpdate(ctx, req.InvestmentID)
	if err != nil {
		return err
	}
	if inv.IsClosed() {
		return apperrors.InvalidState("investment %s is already closed", inv.ID)
	}
	accrual.ActivatePendingRate(inv, asOf)

	switch req.Kind {
	case models.WithdrawalPartial:
		if inv.Status != models.InvestmentActive && inv.Status != models.InvestmentCompleted {
			return apperrors.InvalidState("investment %s is %s", inv.ID, inv.Status)
		}
		available := accrual.AvailableProfit(inv, asOf)
		if req.Amount.GreaterThan(available) {
			return apperrors.InvalidState("requested %s exceeds available profit %s", req.Amount.StringFixed(2), available.StringFixed(2))
		}
		inv.WithdrawnProfits = inv.WithdrawnProfits.Add(req.Amount)

	case models.WithdrawalBonus:
		if inv.BonusWithdrawn {
			return apperrors.InvalidState("bonus of investment %s already withdrawn", inv.ID)
		}
		inv.BonusWithdrawn = true

	case models.WithdrawalEarly:
		if inv.Status != models.InvestmentActive {
			return apperrors.InvalidState("investment %s is %s", inv.ID, inv.Status)
		}
		l.close(inv, asOf)

	case models.WithdrawalFull:
		if inv.Status != models.InvestmentActive && inv.Status != models.InvestmentCompleted {
			return apperrors.InvalidState("investment %s is %s", inv.ID, inv.Status)
		}
		l.close(inv, asOf)

	default:
		return apperrors.Invariant("unknown withdrawal kind %q", req.Kind)
	}

	return tx.SaveInvestment(ctx, inv)
}

// close pays out the principal. Interest is either included in the payout
// or forfeited, so nothing stays accumulated.
func (l *Ledger) close(inv *models.Investment, asOf time.Time) {
	inv.Status = models.InvestmentCompleted
	inv.ClosedAt = &asOf
	inv.AccumulatedInterest = decimal.Zero
	inv.ClearPendingRate()
}

// Reject closes a PENDING request without paying. The profit or earning
// it claimed stays available.
func (l *Ledger) Reject(ctx context.Context, requestID uuid.UUID, reason, actor string) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := store.Transact(ctx, l.store, func(tx store.Repository) error {
		var err error
		req, err = tx.GetWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return apperrors.InvalidState("withdrawal request %s already %s", req.ID, req.Status)
		}

		asOf := l.now()
		req.Status = models.WithdrawalRejected
		req.Reason = reason
		req.ProcessedAt = &asOf
		if err := tx.SaveWithdrawal(ctx, req); err != nil {
			return err
		}
		if err := l.history(ctx, tx, req, "rejected by "+actor+": "+reason); err != nil {
			return err
		}
		return l.audit.Tx(tx).LogEvent(ctx, audit.Event{
			Type:        audit.EventTypeWithdrawal,
			Severity:    audit.SeverityWarning,
			Description: "withdrawal rejected",
			TargetID:    &req.ID,
			Success:     true,
			Metadata:    map[string]interface{}{"reason": reason, "actor": actor},
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("withdrawal_id", req.ID.String()).Str("reason", reason).Msg("Withdrawal rejected")
	return req, nil
}

// Status returns one request
func (l *Ledger) Status(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	return l.store.GetWithdrawal(ctx, requestID)
}

// ListForUser returns the user's requests, newest first
func (l *Ledger) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	return l.store.ListWithdrawalsByUser(ctx, userID)
}

func (l *Ledger) history(ctx context.Context, tx store.Repository, req *models.WithdrawalRequest, notes string) error {
	return tx.CreateWithdrawalHistory(ctx, &models.WithdrawalHistory{
		WithdrawalID: req.ID,
		Status:       req.Status,
		Notes:        notes,
		CreatedAt:    l.now(),
	})
}
