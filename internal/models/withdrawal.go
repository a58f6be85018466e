package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalKind is what a withdrawal request claims against
type WithdrawalKind string

const (
	WithdrawalEarly    WithdrawalKind = "early"
	WithdrawalPartial  WithdrawalKind = "partial"
	WithdrawalFull     WithdrawalKind = "full"
	WithdrawalBonus    WithdrawalKind = "bonus"
	WithdrawalReferral WithdrawalKind = "referral"
)

// WithdrawalStatus is the state of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

// WithdrawalRequest is a one-shot claim against an investment's profit or
// principal, or against one referral earning. Rows are never deleted.
type WithdrawalRequest struct {
	Base
	Kind             WithdrawalKind   `gorm:"type:varchar(20);index:idx_withdrawal_claim;not null" json:"kind"`
	UserID           uuid.UUID        `gorm:"type:uuid;index;not null" json:"user_id"`
	InvestmentID     uuid.UUID        `gorm:"type:uuid;index:idx_withdrawal_claim;not null" json:"investment_id"`
	ReferralUserID   *uuid.UUID       `gorm:"type:uuid;index" json:"referral_user_id,omitempty"`
	EarningID        *uuid.UUID       `gorm:"type:uuid" json:"earning_id,omitempty"`
	BatchID          *uuid.UUID       `gorm:"type:uuid;index" json:"batch_id,omitempty"`
	Amount           decimal.Decimal  `gorm:"type:numeric(38,18);not null" json:"amount"`
	EarnedInterest   decimal.Decimal  `gorm:"type:numeric(38,18);not null;default:0" json:"earned_interest"`
	WithdrawnProfits decimal.Decimal  `gorm:"type:numeric(38,18);not null;default:0" json:"withdrawn_profits"`
	DaysInvested     int              `json:"days_invested"`
	Address          string           `gorm:"type:varchar(128)" json:"address"`
	Status           WithdrawalStatus `gorm:"type:varchar(20);index:idx_withdrawal_claim;not null" json:"status"`
	Reason           string           `gorm:"type:text" json:"reason,omitempty"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	Version          int              `gorm:"not null;default:0" json:"-"`
}

// WithdrawalHistory records each status change of a withdrawal request
type WithdrawalHistory struct {
	ID           uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	WithdrawalID uuid.UUID        `gorm:"type:uuid;index" json:"withdrawal_id"`
	Status       WithdrawalStatus `gorm:"type:varchar(20);not null" json:"status"`
	Notes        string           `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time        `json:"created_at"`
}
