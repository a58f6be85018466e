package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of postgres
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore creates a new gorm backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for health checks
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// WithTx runs fn inside a database transaction. Nested calls join the
// outer transaction.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("error starting transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&GormStore{db: tx, inTx: true}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *GormStore) locked(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("%s %v not found", what, id)
	}
	return fmt.Errorf("error finding %s: %w", what, err)
}

// saveVersioned writes every column of model when the stored version still
// matches, and bumps the version.
func saveVersioned(db *gorm.DB, model interface{}, id uuid.UUID, version *int, what string) error {
	current := *version
	*version = current + 1

	res := db.Model(model).
		Where("id = ? AND version = ?", id, current).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(model)
	if res.Error != nil {
		*version = current
		return fmt.Errorf("error updating %s: %w", what, res.Error)
	}
	if res.RowsAffected == 0 {
		*version = current
		return apperrors.ConcurrentModification("%s %s was modified concurrently", what, id)
	}
	return nil
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.conn(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (s *GormStore) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "referral_code = ?", code).Error; err != nil {
		return nil, notFound(err, "referral code", code)
	}
	return &user, nil
}

func (s *GormStore) ListReferredUsers(ctx context.Context, referrerIDs []uuid.UUID) ([]models.User, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := s.conn(ctx).Where("referred_by IN ?", referrerIDs).Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("error finding referred users: %w", err)
	}
	return users, nil
}

// Investments

func (s *GormStore) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	if err := s.conn(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("error creating investment: %w", err)
	}
	return nil
}

func (s *GormStore) GetInvestment(ctx context.Context, id uuid.UUID) (*models.Investment, error) {
	var inv models.Investment
	if err := s.conn(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "investment", id)
	}
	return &inv, nil
}

func (s *GormStore) GetInvestmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Investment, error) {
	var inv models.Investment
	if err := s.locked(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "investment", id)
	}
	return &inv, nil
}

func (s *GormStore) SaveInvestment(ctx context.Context, inv *models.Investment) error {
	return saveVersioned(s.conn(ctx), inv, inv.ID, &inv.Version, "investment")
}

func (s *GormStore) ListInvestmentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Investment, error) {
	var investments []models.Investment
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("error finding investments: %w", err)
	}
	return investments, nil
}

func (s *GormStore) ListInvestmentsByUsers(ctx context.Context, userIDs []uuid.UUID, statuses ...models.InvestmentStatus) ([]models.Investment, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	q := s.conn(ctx).Where("user_id IN ?", userIDs)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var investments []models.Investment
	if err := q.Order("created_at").Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("error finding investments: %w", err)
	}
	return investments, nil
}

func (s *GormStore) ListActivationDue(ctx context.Context, asOf time.Time) ([]models.Investment, error) {
	var investments []models.Investment
	err := s.conn(ctx).
		Where("status = ? AND pending_roi IS NOT NULL AND rate_activation_date <= ?", models.InvestmentActive, asOf).
		Find(&investments).Error
	if err != nil {
		return nil, fmt.Errorf("error finding due rate activations: %w", err)
	}
	return investments, nil
}

func (s *GormStore) ListMatured(ctx context.Context, asOf time.Time) ([]models.Investment, error) {
	var investments []models.Investment
	err := s.conn(ctx).
		Where("status = ? AND end_date <= ?", models.InvestmentActive, asOf).
		Find(&investments).Error
	if err != nil {
		return nil, fmt.Errorf("error finding matured investments: %w", err)
	}
	return investments, nil
}

func (s *GormStore) ListActiveInvestments(ctx context.Context) ([]models.Investment, error) {
	var investments []models.Investment
	if err := s.conn(ctx).Where("status = ?", models.InvestmentActive).Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("error finding active investments: %w", err)
	}
	return investments, nil
}

// Upgrades

func (s *GormStore) CreateUpgrade(ctx context.Context, upgrade *models.InvestmentUpgrade) error {
	if err := s.conn(ctx).Create(upgrade).Error; err != nil {
		return fmt.Errorf("error creating upgrade: %w", err)
	}
	return nil
}

func (s *GormStore) GetUpgradeForUpdate(ctx context.Context, id uuid.UUID) (*models.InvestmentUpgrade, error) {
	var upgrade models.InvestmentUpgrade
	if err := s.locked(ctx).First(&upgrade, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "upgrade", id)
	}
	return &upgrade, nil
}

func (s *GormStore) SaveUpgrade(ctx context.Context, upgrade *models.InvestmentUpgrade) error {
	return saveVersioned(s.conn(ctx), upgrade, upgrade.ID, &upgrade.Version, "upgrade")
}

// FindPendingUpgrade returns nil when the investment has no pending upgrade
func (s *GormStore) FindPendingUpgrade(ctx context.Context, investmentID uuid.UUID) (*models.InvestmentUpgrade, error) {
	var upgrades []models.InvestmentUpgrade
	err := s.conn(ctx).
		Where("investment_id = ? AND status = ?", investmentID, models.UpgradePending).
		Limit(1).
		Find(&upgrades).Error
	if err != nil {
		return nil, fmt.Errorf("error finding pending upgrade: %w", err)
	}
	if len(upgrades) == 0 {
		return nil, nil
	}
	return &upgrades[0], nil
}

func (s *GormStore) ListAmountUpgradesSince(ctx context.Context, investmentID uuid.UUID, since time.Time) ([]models.InvestmentUpgrade, error) {
	var upgrades []models.InvestmentUpgrade
	err := s.conn(ctx).
		Where("investment_id = ? AND upgrade_type = ? AND status <> ? AND requested_at >= ?",
			investmentID, models.UpgradeAmount, models.UpgradeRejected, since).
		Find(&upgrades).Error
	if err != nil {
		return nil, fmt.Errorf("error finding upgrades: %w", err)
	}
	return upgrades, nil
}

func (s *GormStore) CreateReinvestment(ctx context.Context, r *models.Reinvestment) error {
	if err := s.conn(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("error creating reinvestment: %w", err)
	}
	return nil
}

// Referral earnings

// UpsertEarning inserts the earning or overwrites amount, percentage and
// level of the existing row for the same (referrer, user, investment).
func (s *GormStore) UpsertEarning(ctx context.Context, earning *models.ReferralEarning) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "referrer_id"}, {Name: "user_id"}, {Name: "investment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "percentage", "level", "updated_at"}),
	}).Create(earning).Error
	if err != nil {
		return fmt.Errorf("error saving referral earning: %w", err)
	}

	// the conflict path keeps the stored id and withdrawn flag
	err = s.conn(ctx).
		Where("referrer_id = ? AND user_id = ? AND investment_id = ?", earning.ReferrerID, earning.UserID, earning.InvestmentID).
		First(earning).Error
	if err != nil {
		return fmt.Errorf("error reloading referral earning: %w", err)
	}
	return nil
}

func (s *GormStore) GetEarning(ctx context.Context, id uuid.UUID) (*models.ReferralEarning, error) {
	var earning models.ReferralEarning
	if err := s.conn(ctx).First(&earning, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "referral earning", id)
	}
	return &earning, nil
}

func (s *GormStore) ListEarningsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning
	if err := s.conn(ctx).Where("referrer_id = ?", referrerID).Order("created_at").Find(&earnings).Error; err != nil {
		return nil, fmt.Errorf("error finding referral earnings: %w", err)
	}
	return earnings, nil
}

// MarkEarningWithdrawn flips withdrawn only while it is still false
func (s *GormStore) MarkEarningWithdrawn(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := s.conn(ctx).Model(&models.ReferralEarning{}).
		Where("id = ? AND withdrawn = ?", id, false).
		Updates(map[string]interface{}{"withdrawn": true, "withdrawn_at": at})
	if res.Error != nil {
		return fmt.Errorf("error marking referral earning withdrawn: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetEarning(ctx, id); err != nil {
			return err
		}
		return apperrors.InvalidState("referral earning %s already withdrawn", id)
	}
	return nil
}

// Withdrawals

func (s *GormStore) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	if err := s.conn(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("error creating withdrawal request: %w", err)
	}
	return nil
}

func (s *GormStore) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := s.conn(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "withdrawal request", id)
	}
	return &w, nil
}

func (s *GormStore) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := s.locked(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "withdrawal request", id)
	}
	return &w, nil
}

func (s *GormStore) SaveWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	return saveVersioned(s.conn(ctx), w, w.ID, &w.Version, "withdrawal request")
}

func (s *GormStore) CountWithdrawals(ctx context.Context, filter WithdrawalFilter) (int64, error) {
	q := s.conn(ctx).Model(&models.WithdrawalRequest{})
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.InvestmentID != nil {
		q = q.Where("investment_id = ?", *filter.InvestmentID)
	}
	if filter.ReferralUserID != nil {
		q = q.Where("referral_user_id = ?", *filter.ReferralUserID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting withdrawal requests: %w", err)
	}
	return count, nil
}

func (s *GormStore) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	var requests []models.WithdrawalRequest
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("error finding withdrawal requests: %w", err)
	}
	return requests, nil
}

func (s *GormStore) CreateWithdrawalHistory(ctx context.Context, h *models.WithdrawalHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if err := s.conn(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("error creating withdrawal history: %w", err)
	}
	return nil
}

// Snapshots and audit

func (s *GormStore) CreateProfitSnapshot(ctx context.Context, snap *models.ProfitSnapshot) error {
	if err := s.conn(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("error creating profit snapshot: %w", err)
	}
	return nil
}

// LatestProfitSnapshot returns nil when the user has no snapshot before the cutoff
func (s *GormStore) LatestProfitSnapshot(ctx context.Context, userID uuid.UUID, before time.Time) (*models.ProfitSnapshot, error) {
	var snaps []models.ProfitSnapshot
	err := s.conn(ctx).
		Where("user_id = ? AND recorded_at < ?", userID, before).
		Order("recorded_at DESC").
		Limit(1).
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("error finding profit snapshot: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (s *GormStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := s.conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("error creating audit log: %w", err)
	}
	return nil
}

var _ Store = (*GormStore)(nil)
