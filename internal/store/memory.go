package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/models"
)

// MemoryStore is a Store kept in maps. Transactions hold a single lock and
// restore a copy of every table when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

type memData struct {
	users        map[uuid.UUID]models.User
	investments  map[uuid.UUID]models.Investment
	upgrades     map[uuid.UUID]models.InvestmentUpgrade
	reinvestment map[uuid.UUID]models.Reinvestment
	earnings     map[uuid.UUID]models.ReferralEarning
	withdrawals  map[uuid.UUID]models.WithdrawalRequest
	history      []models.WithdrawalHistory
	snapshots    []models.ProfitSnapshot
	audit        []models.AuditLog
}

func newMemData() *memData {
	return &memData{
		users:        map[uuid.UUID]models.User{},
		investments:  map[uuid.UUID]models.Investment{},
		upgrades:     map[uuid.UUID]models.InvestmentUpgrade{},
		reinvestment: map[uuid.UUID]models.Reinvestment{},
		earnings:     map[uuid.UUID]models.ReferralEarning{},
		withdrawals:  map[uuid.UUID]models.WithdrawalRequest{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		users:        cloneMap(d.users),
		investments:  cloneMap(d.investments),
		upgrades:     cloneMap(d.upgrades),
		reinvestment: cloneMap(d.reinvestment),
		earnings:     cloneMap(d.earnings),
		withdrawals:  cloneMap(d.withdrawals),
		history:      append([]models.WithdrawalHistory(nil), d.history...),
		snapshots:    append([]models.ProfitSnapshot(nil), d.snapshots...),
		audit:        append([]models.AuditLog(nil), d.audit...),
	}
}

// WithTx serialises fn against every other call on the store
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Repository) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = backup
			panic(r)
		}
	}()

	if err = fn(s.data); err != nil {
		s.data = backup
	}
	return err
}

// AuditLogs returns a copy of every audit entry written so far
func (s *MemoryStore) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.data.audit...)
}

// WithdrawalHistory returns the status trail of one request
func (s *MemoryStore) WithdrawalHistory(withdrawalID uuid.UUID) []models.WithdrawalHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WithdrawalHistory
	for _, h := range s.data.history {
		if h.WithdrawalID == withdrawalID {
			out = append(out, h)
		}
	}
	return out
}

func (s *MemoryStore) locked(fn func(d *memData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func stamp(base *models.Base) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = time.Now()
	}
	base.UpdatedAt = base.CreatedAt
}

func byCreated[T any](items []T, created func(T) time.Time, id func(T) uuid.UUID, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := created(items[i]), created(items[j])
		if a.Equal(b) {
			return id(items[i]).String() < id(items[j]).String()
		}
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Users

func (d *memData) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range d.users {
		if u.Email == user.Email {
			return apperrors.Validation("email %s already registered", user.Email)
		}
		if u.ReferralCode == user.ReferralCode {
			return apperrors.Validation("referral code %s already taken", user.ReferralCode)
		}
	}
	stamp(&user.Base)
	d.users[user.ID] = *user
	return nil
}

func (d *memData) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.NotFound("user %s not found", id)
	}
	return &u, nil
}

func (d *memData) GetUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	for _, u := range d.users {
		if u.ReferralCode == code {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("referral code %s not found", code)
}

func (d *memData) ListReferredUsers(_ context.Context, referrerIDs []uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, u := range d.users {
		if u.ReferredBy != nil && contains(referrerIDs, *u.ReferredBy) {
			out = append(out, u)
		}
	}
	byCreated(out, func(u models.User) time.Time { return u.CreatedAt }, func(u models.User) uuid.UUID { return u.ID }, false)
	return out, nil
}

// Investments

func investmentCreated(i models.Investment) time.Time { return i.CreatedAt }
func investmentID(i models.Investment) uuid.UUID      { return i.ID }

func (d *memData) CreateInvestment(_ context.Context, inv *models.Investment) error {
	stamp(&inv.Base)
	d.investments[inv.ID] = *inv
	return nil
}

func (d *memData) GetInvestment(_ context.Context, id uuid.UUID) (*models.Investment, error) {
	inv, ok := d.investments[id]
	if !ok {
		return nil, apperrors.NotFound("investment %s not found", id)
	}
	return &inv, nil
}

func (d *memData) GetInvestmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Investment, error) {
	return d.GetInvestment(ctx, id)
}

func (d *memData) SaveInvestment(_ context.Context, inv *models.Investment) error {
	stored, ok := d.investments[inv.ID]
	if !ok {
		return apperrors.NotFound("investment %s not found", inv.ID)
	}
	if stored.Version != inv.Version {
		return apperrors.ConcurrentModification("investment %s was modified concurrently", inv.ID)
	}
	inv.Version++
	inv.UpdatedAt = time.Now()
	d.investments[inv.ID] = *inv
	return nil
}

func (d *memData) filterInvestments(keep func(models.Investment) bool, desc bool) []models.Investment {
	var out []models.Investment
	for _, inv := range d.investments {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	byCreated(out, investmentCreated, investmentID, desc)
	return out
}

func (d *memData) ListInvestmentsByUser(_ context.Context, userID uuid.UUID) ([]models.Investment, error) {
	return d.filterInvestments(func(inv models.Investment) bool { return inv.UserID == userID }, true), nil
}

func (d *memData) ListInvestmentsByUsers(_ context.Context, userIDs []uuid.UUID, statuses ...models.InvestmentStatus) ([]models.Investment, error) {
	return d.filterInvestments(func(inv models.Investment) bool {
		if !contains(userIDs, inv.UserID) {
			return false
		}
		return len(statuses) == 0 || contains(statuses, inv.Status)
	}, false), nil
}

func (d *memData) ListActivationDue(_ context.Context, asOf time.Time) ([]models.Investment, error) {
	return d.filterInvestments(func(inv models.Investment) bool {
		return inv.Status == models.InvestmentActive && inv.HasPendingRate() && !inv.RateActivationDate.After(asOf)
	}, false), nil
}

func (d *memData) ListMatured(_ context.Context, asOf time.Time) ([]models.Investment, error) {
	return d.filterInvestments(func(inv models.Investment) bool {
		return inv.Status == models.InvestmentActive && inv.EndDate != nil && !inv.EndDate.After(asOf)
	}, false), nil
}

func (d *memData) ListActiveInvestments(_ context.Context) ([]models.Investment, error) {
	return d.filterInvestments(func(inv models.Investment) bool {
		return inv.Status == models.InvestmentActive
	}, false), nil
}

// Upgrades

func (d *memData) CreateUpgrade(_ context.Context, upgrade *models.InvestmentUpgrade) error {
	stamp(&upgrade.Base)
	d.upgrades[upgrade.ID] = *upgrade
	return nil
}

func (d *memData) GetUpgradeForUpdate(_ context.Context, id uuid.UUID) (*models.InvestmentUpgrade, error) {
	u, ok := d.upgrades[id]
	if !ok {
		return nil, apperrors.NotFound("upgrade %s not found", id)
	}
	return &u, nil
}

func (d *memData) SaveUpgrade(_ context.Context, upgrade *models.InvestmentUpgrade) error {
	stored, ok := d.upgrades[upgrade.ID]
	if !ok {
		return apperrors.NotFound("upgrade %s not found", upgrade.ID)
	}
	if stored.Version != upgrade.Version {
		return apperrors.ConcurrentModification("upgrade %s was modified concurrently", upgrade.ID)
	}
	upgrade.Version++
	upgrade.UpdatedAt = time.Now()
	d.upgrades[upgrade.ID] = *upgrade
	return nil
}

func (d *memData) FindPendingUpgrade(_ context.Context, investmentID uuid.UUID) (*models.InvestmentUpgrade, error) {
	for _, u := range d.upgrades {
		if u.InvestmentID == investmentID && u.Status == models.UpgradePending {
			return &u, nil
		}
	}
	return nil, nil
}

func (d *memData) ListAmountUpgradesSince(_ context.Context, investmentID uuid.UUID, since time.Time) ([]models.InvestmentUpgrade, error) {
	var out []models.InvestmentUpgrade
	for _, u := range d.upgrades {
		if u.InvestmentID == investmentID &&
			u.UpgradeType == models.UpgradeAmount &&
			u.Status != models.UpgradeRejected &&
			!u.RequestedAt.Before(since) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *memData) CreateReinvestment(_ context.Context, r *models.Reinvestment) error {
	stamp(&r.Base)
	d.reinvestment[r.ID] = *r
	return nil
}

// Referral earnings

func (d *memData) UpsertEarning(_ context.Context, earning *models.ReferralEarning) error {
	for id, e := range d.earnings {
		if e.ReferrerID == earning.ReferrerID && e.UserID == earning.UserID && e.InvestmentID == earning.InvestmentID {
			e.Amount = earning.Amount
			e.Percentage = earning.Percentage
			e.Level = earning.Level
			e.UpdatedAt = time.Now()
			d.earnings[id] = e
			*earning = e
			return nil
		}
	}
	stamp(&earning.Base)
	d.earnings[earning.ID] = *earning
	return nil
}

func (d *memData) GetEarning(_ context.Context, id uuid.UUID) (*models.ReferralEarning, error) {
	e, ok := d.earnings[id]
	if !ok {
		return nil, apperrors.NotFound("referral earning %s not found", id)
	}
	return &e, nil
}

func (d *memData) ListEarningsByReferrer(_ context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error) {
	var out []models.ReferralEarning
	for _, e := range d.earnings {
		if e.ReferrerID == referrerID {
			out = append(out, e)
		}
	}
	byCreated(out, func(e models.ReferralEarning) time.Time { return e.CreatedAt }, func(e models.ReferralEarning) uuid.UUID { return e.ID }, false)
	return out, nil
}

func (d *memData) MarkEarningWithdrawn(_ context.Context, id uuid.UUID, at time.Time) error {
	e, ok := d.earnings[id]
	if !ok {
		return apperrors.NotFound("referral earning %s not found", id)
	}
	if e.Withdrawn {
		return apperrors.InvalidState("referral earning %s already withdrawn", id)
	}
	e.Withdrawn = true
	e.WithdrawnAt = &at
	d.earnings[id] = e
	return nil
}

// Withdrawals

func (d *memData) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	stamp(&w.Base)
	d.withdrawals[w.ID] = *w
	return nil
}

func (d *memData) GetWithdrawal(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, ok := d.withdrawals[id]
	if !ok {
		return nil, apperrors.NotFound("withdrawal request %s not found", id)
	}
	return &w, nil
}

func (d *memData) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return d.GetWithdrawal(ctx, id)
}

func (d *memData) SaveWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	stored, ok := d.withdrawals[w.ID]
	if !ok {
		return apperrors.NotFound("withdrawal request %s not found", w.ID)
	}
	if stored.Version != w.Version {
		return apperrors.ConcurrentModification("withdrawal request %s was modified concurrently", w.ID)
	}
	w.Version++
	w.UpdatedAt = time.Now()
	d.withdrawals[w.ID] = *w
	return nil
}

func (d *memData) CountWithdrawals(_ context.Context, f WithdrawalFilter) (int64, error) {
	var n int64
	for _, w := range d.withdrawals {
		if f.Kind != "" && w.Kind != f.Kind {
			continue
		}
		if f.UserID != nil && w.UserID != *f.UserID {
			continue
		}
		if f.InvestmentID != nil && w.InvestmentID != *f.InvestmentID {
			continue
		}
		if f.ReferralUserID != nil && (w.ReferralUserID == nil || *w.ReferralUserID != *f.ReferralUserID) {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, w.Status) {
			continue
		}
		n++
	}
	return n, nil
}

func (d *memData) ListWithdrawalsByUser(_ context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	for _, w := range d.withdrawals {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	byCreated(out, func(w models.WithdrawalRequest) time.Time { return w.CreatedAt }, func(w models.WithdrawalRequest) uuid.UUID { return w.ID }, true)
	return out, nil
}

func (d *memData) CreateWithdrawalHistory(_ context.Context, h *models.WithdrawalHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	d.history = append(d.history, *h)
	return nil
}

// Snapshots and audit

func (d *memData) CreateProfitSnapshot(_ context.Context, snap *models.ProfitSnapshot) error {
	stamp(&snap.Base)
	d.snapshots = append(d.snapshots, *snap)
	return nil
}

func (d *memData) LatestProfitSnapshot(_ context.Context, userID uuid.UUID, before time.Time) (*models.ProfitSnapshot, error) {
	var latest *models.ProfitSnapshot
	for i := range d.snapshots {
		s := d.snapshots[i]
		if s.UserID != userID || !s.RecordedAt.Before(before) {
			continue
		}
		if latest == nil || s.RecordedAt.After(latest.RecordedAt) {
			latest = &s
		}
	}
	return latest, nil
}

func (d *memData) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	d.audit = append(d.audit, *entry)
	return nil
}

var _ Repository = (*memData)(nil)
