package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralEarning is the commission a referrer earns on one downstream
// investment. (ReferrerID, UserID, InvestmentID) identifies exactly one row.
// Amount and Percentage are recomputed and overwritten every time the
// commission is calculated; they are not a running total.
type ReferralEarning struct {
	Base
	ReferrerID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_referral_earning_triple" json:"referrer_id"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_referral_earning_triple" json:"user_id"`
	InvestmentID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_referral_earning_triple" json:"investment_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	Percentage   decimal.Decimal `gorm:"type:numeric(6,3);not null" json:"percentage"`
	Level        int             `gorm:"not null" json:"level"`
	Withdrawn    bool            `gorm:"not null;default:false" json:"withdrawn"`
	WithdrawnAt  *time.Time      `json:"withdrawn_at,omitempty"`
}
