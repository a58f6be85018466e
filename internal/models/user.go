package models

import (
	"github.com/google/uuid"
)

// User is the minimal account record the referral tree needs. Credentials
// live with the auth service that issues our JWTs.
type User struct {
	Base
	Email          string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username       string     `gorm:"type:varchar(50)" json:"username"`
	ReferralCode   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"referral_code"`
	ReferredBy     *uuid.UUID `gorm:"type:uuid;index" json:"referred_by,omitempty"`
	TelegramChatID *int64     `json:"telegram_chat_id,omitempty"`
	Language       string     `gorm:"type:varchar(8);default:'en'" json:"language"`
}
