package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvestmentStatus is the lifecycle state of an investment
type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "PENDING"
	InvestmentActive    InvestmentStatus = "ACTIVE"
	InvestmentCompleted InvestmentStatus = "COMPLETED"
	InvestmentCancelled InvestmentStatus = "CANCELLED"
)

// Investment is a time-locked deposit accruing interest at EffectiveROI per month.
// EffectiveROI always equals ROI + DurationBonus.
type Investment struct {
	Base
	UserID              uuid.UUID           `gorm:"type:uuid;index;not null" json:"user_id"`
	PlanTier            string              `gorm:"type:varchar(20);not null" json:"plan_tier"`
	Amount              decimal.Decimal     `gorm:"type:numeric(38,18);not null" json:"amount"`
	Duration            int                 `gorm:"not null" json:"duration"`
	ROI                 decimal.Decimal     `gorm:"type:numeric(10,4);not null" json:"roi"`
	DurationBonus       decimal.Decimal     `gorm:"type:numeric(10,4);not null;default:0" json:"duration_bonus"`
	EffectiveROI        decimal.Decimal     `gorm:"type:numeric(10,4);not null" json:"effective_roi"`
	BonusAmount         decimal.Decimal     `gorm:"type:numeric(38,18);not null;default:0" json:"bonus_amount"`
	BonusUnlockAt       *time.Time          `json:"bonus_unlock_at,omitempty"`
	BonusWithdrawn      bool                `gorm:"not null;default:false" json:"bonus_withdrawn"`
	WalletAddress       string              `gorm:"type:varchar(128)" json:"wallet_address"`
	StartDate           *time.Time          `json:"start_date,omitempty"`
	EndDate             *time.Time          `json:"end_date,omitempty"`
	LastUpgradeDate     *time.Time          `json:"last_upgrade_date,omitempty"`
	AccumulatedInterest decimal.Decimal     `gorm:"type:numeric(38,18);not null;default:0" json:"accumulated_interest"`
	WithdrawnProfits    decimal.Decimal     `gorm:"type:numeric(38,18);not null;default:0" json:"withdrawn_profits"`
	PendingROI          decimal.NullDecimal `gorm:"type:numeric(10,4)" json:"pending_roi"`
	PendingTier         string              `gorm:"type:varchar(20)" json:"pending_tier,omitempty"`
	RateActivationDate  *time.Time          `json:"rate_activation_date,omitempty"`
	Status              InvestmentStatus    `gorm:"type:varchar(20);index;not null" json:"status"`
	ClosedAt            *time.Time          `json:"closed_at,omitempty"`
	Version             int                 `gorm:"not null;default:0" json:"-"`
}

// AccrualBase is the date day-counting restarts from: the last rate change,
// otherwise the start date.
func (i *Investment) AccrualBase() time.Time {
	if i.LastUpgradeDate != nil {
		return *i.LastUpgradeDate
	}
	if i.StartDate != nil {
		return *i.StartDate
	}
	return i.CreatedAt
}

// HasPendingRate reports whether a reinvestment scheduled a future rate
func (i *Investment) HasPendingRate() bool {
	return i.PendingROI.Valid && i.RateActivationDate != nil
}

// ClearPendingRate drops the scheduled rate
func (i *Investment) ClearPendingRate() {
	i.PendingROI = decimal.NullDecimal{}
	i.PendingTier = ""
	i.RateActivationDate = nil
}

// IsClosed reports whether principal has been paid out
func (i *Investment) IsClosed() bool {
	return i.ClosedAt != nil
}

// UpgradeType distinguishes amount and duration upgrades
type UpgradeType string

const (
	UpgradeAmount   UpgradeType = "amount"
	UpgradeDuration UpgradeType = "duration"
)

// UpgradeStatus is the state of an upgrade row
type UpgradeStatus string

const (
	UpgradePending   UpgradeStatus = "PENDING"
	UpgradeCompleted UpgradeStatus = "COMPLETED"
	UpgradeRejected  UpgradeStatus = "REJECTED"
)

// InvestmentUpgrade records a requested or applied plan change. Amount
// upgrades wait for payment confirmation, duration upgrades are written
// already COMPLETED.
type InvestmentUpgrade struct {
	Base
	InvestmentID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"investment_id"`
	UserID              uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	UpgradeType         UpgradeType     `gorm:"type:varchar(20);not null" json:"upgrade_type"`
	AdditionalAmount    decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"additional_amount"`
	OldPackage          string          `gorm:"type:varchar(20)" json:"old_package"`
	NewPackage          string          `gorm:"type:varchar(20)" json:"new_package"`
	OldAPY              decimal.Decimal `gorm:"type:numeric(10,4)" json:"old_apy"`
	NewAPY              decimal.Decimal `gorm:"type:numeric(10,4)" json:"new_apy"`
	OldDuration         int             `json:"old_duration"`
	NewDuration         int             `json:"new_duration"`
	OldEndDate          *time.Time      `json:"old_end_date,omitempty"`
	NewEndDate          *time.Time      `json:"new_end_date,omitempty"`
	AccumulatedInterest decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"accumulated_interest"`
	SenderAddress       string          `gorm:"type:varchar(128)" json:"sender_address,omitempty"`
	Status              UpgradeStatus   `gorm:"type:varchar(20);index;not null" json:"status"`
	RequestedAt         time.Time       `json:"requested_at"`
	ProcessedAt         *time.Time      `json:"processed_at,omitempty"`
	RejectionReason     string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	Version             int             `gorm:"not null;default:0" json:"-"`
}

// ReinvestSource says where reinvested money came from
type ReinvestSource string

const (
	ReinvestFromProfit   ReinvestSource = "profit"
	ReinvestFromReferral ReinvestSource = "referral"
)

// Reinvestment is the audit row written for every reinvest
type Reinvestment struct {
	Base
	InvestmentID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"investment_id"`
	UserID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Source         ReinvestSource  `gorm:"type:varchar(20);not null" json:"source"`
	Amount         decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	OldAmount      decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"old_amount"`
	NewAmount      decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"new_amount"`
	OldPackage     string          `gorm:"type:varchar(20)" json:"old_package"`
	NewPackage     string          `gorm:"type:varchar(20)" json:"new_package"`
	OldROI         decimal.Decimal `gorm:"type:numeric(10,4)" json:"old_roi"`
	NewROI         decimal.Decimal `gorm:"type:numeric(10,4)" json:"new_roi"`
	ActivationDate *time.Time      `json:"activation_date,omitempty"`
}

// ProfitSnapshot is the daily per-user profit total used for "since yesterday" deltas
type ProfitSnapshot struct {
	Base
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	TotalProfit   decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"total_profit"`
	DailyIncrease decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"daily_increase"`
	RecordedAt    time.Time       `gorm:"index;not null" json:"recorded_at"`
}
