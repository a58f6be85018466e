package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/models"
)

// The exported methods below take the store lock and delegate to the tables.

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.locked(func(d *memData) error { return d.CreateUser(ctx, user) })
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetUser(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var out *models.User
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetUserByReferralCode(ctx, code)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListReferredUsers(ctx context.Context, referrerIDs []uuid.UUID) ([]models.User, error) {
	var out []models.User
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListReferredUsers(ctx, referrerIDs)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	return s.locked(func(d *memData) error { return d.CreateInvestment(ctx, inv) })
}

func (s *MemoryStore) GetInvestment(ctx context.Context, id uuid.UUID) (*models.Investment, error) {
	var out *models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetInvestment(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetInvestmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Investment, error) {
	var out *models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetInvestmentForUpdate(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) SaveInvestment(ctx context.Context, inv *models.Investment) error {
	return s.locked(func(d *memData) error { return d.SaveInvestment(ctx, inv) })
}

func (s *MemoryStore) ListInvestmentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Investment, error) {
	var out []models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListInvestmentsByUser(ctx, userID)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListInvestmentsByUsers(ctx context.Context, userIDs []uuid.UUID, statuses ...models.InvestmentStatus) ([]models.Investment, error) {
	var out []models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListInvestmentsByUsers(ctx, userIDs, statuses...)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListActivationDue(ctx context.Context, asOf time.Time) ([]models.Investment, error) {
	var out []models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListActivationDue(ctx, asOf)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListMatured(ctx context.Context, asOf time.Time) ([]models.Investment, error) {
	var out []models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListMatured(ctx, asOf)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListActiveInvestments(ctx context.Context) ([]models.Investment, error) {
	var out []models.Investment
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListActiveInvestments(ctx)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateUpgrade(ctx context.Context, upgrade *models.InvestmentUpgrade) error {
	return s.locked(func(d *memData) error { return d.CreateUpgrade(ctx, upgrade) })
}

func (s *MemoryStore) GetUpgradeForUpdate(ctx context.Context, id uuid.UUID) (*models.InvestmentUpgrade, error) {
	var out *models.InvestmentUpgrade
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetUpgradeForUpdate(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) SaveUpgrade(ctx context.Context, upgrade *models.InvestmentUpgrade) error {
	return s.locked(func(d *memData) error { return d.SaveUpgrade(ctx, upgrade) })
}

func (s *MemoryStore) FindPendingUpgrade(ctx context.Context, investmentID uuid.UUID) (*models.InvestmentUpgrade, error) {
	var out *models.InvestmentUpgrade
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.FindPendingUpgrade(ctx, investmentID)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListAmountUpgradesSince(ctx context.Context, investmentID uuid.UUID, since time.Time) ([]models.InvestmentUpgrade, error) {
	var out []models.InvestmentUpgrade
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListAmountUpgradesSince(ctx, investmentID, since)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateReinvestment(ctx context.Context, r *models.Reinvestment) error {
	return s.locked(func(d *memData) error { return d.CreateReinvestment(ctx, r) })
}

func (s *MemoryStore) UpsertEarning(ctx context.Context, earning *models.ReferralEarning) error {
	return s.locked(func(d *memData) error { return d.UpsertEarning(ctx, earning) })
}

func (s *MemoryStore) GetEarning(ctx context.Context, id uuid.UUID) (*models.ReferralEarning, error) {
	var out *models.ReferralEarning
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetEarning(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListEarningsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error) {
	var out []models.ReferralEarning
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListEarningsByReferrer(ctx, referrerID)
		return err
	})
	return out, err
}

func (s *MemoryStore) MarkEarningWithdrawn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.locked(func(d *memData) error { return d.MarkEarningWithdrawn(ctx, id, at) })
}

func (s *MemoryStore) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	return s.locked(func(d *memData) error { return d.CreateWithdrawal(ctx, w) })
}

func (s *MemoryStore) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var out *models.WithdrawalRequest
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetWithdrawal(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var out *models.WithdrawalRequest
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.GetWithdrawalForUpdate(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) SaveWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	return s.locked(func(d *memData) error { return d.SaveWithdrawal(ctx, w) })
}

func (s *MemoryStore) CountWithdrawals(ctx context.Context, filter WithdrawalFilter) (int64, error) {
	var out int64
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.CountWithdrawals(ctx, filter)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.ListWithdrawalsByUser(ctx, userID)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateWithdrawalHistory(ctx context.Context, h *models.WithdrawalHistory) error {
	return s.locked(func(d *memData) error { return d.CreateWithdrawalHistory(ctx, h) })
}

func (s *MemoryStore) CreateProfitSnapshot(ctx context.Context, snap *models.ProfitSnapshot) error {
	return s.locked(func(d *memData) error { return d.CreateProfitSnapshot(ctx, snap) })
}

func (s *MemoryStore) LatestProfitSnapshot(ctx context.Context, userID uuid.UUID, before time.Time) (*models.ProfitSnapshot, error) {
	var out *models.ProfitSnapshot
	err := s.locked(func(d *memData) error {
		var err error
		out, err = d.LatestProfitSnapshot(ctx, userID, before)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.locked(func(d *memData) error { return d.CreateAuditLog(ctx, entry) })
}

var _ Store = (*MemoryStore)(nil)
