// Package store is the persistence capability the services are written
// against. GormStore backs it with postgres, MemoryStore with maps for tests
// and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/models"
)

// WithdrawalFilter selects withdrawal requests for the duplicate guards.
// Zero-valued fields are ignored.
type WithdrawalFilter struct {
	Kind           models.WithdrawalKind
	UserID         *uuid.UUID
	InvestmentID   *uuid.UUID
	ReferralUserID *uuid.UUID
	Statuses       []models.WithdrawalStatus
}

// Repository is every read and write the services perform. Lookups of
// unknown ids return an apperrors.ErrNotFound error. Save* methods bump the
// row's Version and fail with apperrors.ErrConcurrentModification when the
// stored version moved underneath the caller.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	ListReferredUsers(ctx context.Context, referrerIDs []uuid.UUID) ([]models.User, error)

	CreateInvestment(ctx context.Context, inv *models.Investment) error
	GetInvestment(ctx context.Context, id uuid.UUID) (*models.Investment, error)
	GetInvestmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Investment, error)
	SaveInvestment(ctx context.Context, inv *models.Investment) error
	ListInvestmentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Investment, error)
	ListInvestmentsByUsers(ctx context.Context, userIDs []uuid.UUID, statuses ...models.InvestmentStatus) ([]models.Investment, error)
	ListActivationDue(ctx context.Context, asOf time.Time) ([]models.Investment, error)
	ListMatured(ctx context.Context, asOf time.Time) ([]models.Investment, error)
	ListActiveInvestments(ctx context.Context) ([]models.Investment, error)

	CreateUpgrade(ctx context.Context, upgrade *models.InvestmentUpgrade) error
	GetUpgradeForUpdate(ctx context.Context, id uuid.UUID) (*models.InvestmentUpgrade, error)
	SaveUpgrade(ctx context.Context, upgrade *models.InvestmentUpgrade) error
	FindPendingUpgrade(ctx context.Context, investmentID uuid.UUID) (*models.InvestmentUpgrade, error)
	ListAmountUpgradesSince(ctx context.Context, investmentID uuid.UUID, since time.Time) ([]models.InvestmentUpgrade, error)

	CreateReinvestment(ctx context.Context, r *models.Reinvestment) error

	UpsertEarning(ctx context.Context, earning *models.ReferralEarning) error
	GetEarning(ctx context.Context, id uuid.UUID) (*models.ReferralEarning, error)
	ListEarningsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error)
	MarkEarningWithdrawn(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	SaveWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	CountWithdrawals(ctx context.Context, filter WithdrawalFilter) (int64, error)
	ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error)
	CreateWithdrawalHistory(ctx context.Context, h *models.WithdrawalHistory) error

	CreateProfitSnapshot(ctx context.Context, s *models.ProfitSnapshot) error
	LatestProfitSnapshot(ctx context.Context, userID uuid.UUID, before time.Time) (*models.ProfitSnapshot, error)

	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Store is a Repository that can run a unit of work atomically. fn must
// only use the Repository it is handed; everything it wrote is rolled back
// when it returns an error or panics.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// Transact runs fn in a transaction and runs it once more when the first
// attempt lost an optimistic version check.
func Transact(ctx context.Context, s Store, fn func(tx Repository) error) error {
	err := s.WithTx(ctx, fn)
	if errors.Is(err, apperrors.ErrConcurrentModification) {
		err = s.WithTx(ctx, fn)
	}
	return err
}
