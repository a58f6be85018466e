package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of a state change or approval decision
type AuditLog struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID      *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	TargetID    *uuid.UUID `gorm:"type:uuid;index" json:"target_id,omitempty"`
	EventType   string     `gorm:"type:varchar(50);index" json:"event_type"`
	Severity    string     `gorm:"type:varchar(20)" json:"severity"`
	Description string     `gorm:"type:text" json:"description"`
	IPAddress   string     `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent   string     `gorm:"type:text" json:"user_agent,omitempty"`
	Metadata    JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success     bool       `gorm:"index" json:"success"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}
