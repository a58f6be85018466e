// Package approvals applies operator decisions to the lifecycle and the
// withdrawal ledger.
package approvals

import (
	"context"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
)

// Lifecycle is the part of the investment service decisions act on
type Lifecycle interface {
	ConfirmFunding(ctx context.Context, investmentID uuid.UUID) (*models.Investment, error)
	CancelInvestment(ctx context.Context, investmentID uuid.UUID, reason string) (*models.Investment, error)
	CompleteAmountUpgrade(ctx context.Context, upgradeID uuid.UUID) (*models.Investment, error)
	RejectAmountUpgrade(ctx context.Context, upgradeID uuid.UUID, reason string) (*models.InvestmentUpgrade, error)
}

// Ledger is the part of the withdrawal ledger decisions act on
type Ledger interface {
	Approve(ctx context.Context, requestID uuid.UUID, actor string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, reason, actor string) (*models.WithdrawalRequest, error)
}

// Service routes decisions by kind
type Service struct {
	lifecycle Lifecycle
	ledger    Ledger
	log       *logger.Logger
}

// NewService creates a new approvals service
func NewService(lifecycle Lifecycle, ledger Ledger, log *logger.Logger) *Service {
	return &Service{
		lifecycle: lifecycle,
		ledger:    ledger,
		log:       log.Component("approvals"),
	}
}

// Resolve applies d. Deciding twice on the same item fails with
// ErrInvalidState from the underlying service.
func (s *Service) Resolve(ctx context.Context, d approval.Decision) error {
	if d.ID == uuid.Nil {
		return apperrors.Validation("decision id is required")
	}
	if d.Verdict != approval.Approve && d.Verdict != approval.Reject {
		return apperrors.Validation("unknown verdict %q", d.Verdict)
	}

	reason := d.Reason
	if d.Verdict == approval.Reject && reason == "" {
		reason = "rejected"
	}

	var err error
	switch d.Kind {
	case approval.KindInvestment:
		if d.Verdict == approval.Approve {
			_, err = s.lifecycle.ConfirmFunding(ctx, d.ID)
		} else {
			_, err = s.lifecycle.CancelInvestment(ctx, d.ID, reason)
		}
	case approval.KindUpgrade:
		if d.Verdict == approval.Approve {
			_, err = s.lifecycle.CompleteAmountUpgrade(ctx, d.ID)
		} else {
			_, err = s.lifecycle.RejectAmountUpgrade(ctx, d.ID, reason)
		}
	case approval.KindWithdrawal:
		if d.Verdict == approval.Approve {
			_, err = s.ledger.Approve(ctx, d.ID, d.Actor)
		} else {
			_, err = s.ledger.Reject(ctx, d.ID, reason, d.Actor)
		}
	default:
		return apperrors.Validation("unknown approval kind %q", d.Kind)
	}
	if err != nil {
		return err
	}

	s.log.Info().
		Str("kind", string(d.Kind)).
		Str("id", d.ID.String()).
		Str("verdict", string(d.Verdict)).
		Str("actor", d.Actor).
		Msg("Decision resolved")
	return nil
}
