package audit

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/models"
)

// EventType represents the type of audit event
type EventType string

// EventSeverity represents the severity level of an audit event
type EventSeverity string

const (
	// Event types
	EventTypeInvestment EventType = "investment"
	EventTypeUpgrade    EventType = "upgrade"
	EventTypeReinvest   EventType = "reinvest"
	EventTypeWithdrawal EventType = "withdrawal"
	EventTypeReferral   EventType = "referral"
	EventTypeApproval   EventType = "approval"
	EventTypeAdmin      EventType = "admin"

	// Severity levels
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// Sink persists audit entries. store.Repository satisfies it, so entries
// written through a transaction's repository commit or roll back with it.
type Sink interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Event is one audit entry before it is stamped
type Event struct {
	Type        EventType
	Severity    EventSeverity
	Description string
	UserID      *uuid.UUID
	TargetID    *uuid.UUID
	Success     bool
	Metadata    map[string]interface{}
}

// Logger is the audit logger
type Logger struct {
	sink Sink
	now  func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(sink Sink) *Logger {
	return &Logger{
		sink: sink,
		now:  time.Now,
	}
}

// WithClock replaces the time source
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Tx returns a logger writing through sink, usually a transaction
func (l *Logger) Tx(sink Sink) *Logger {
	return &Logger{sink: sink, now: l.now}
}

// Log logs a successful info event
func (l *Logger) Log(ctx context.Context, eventType EventType, description string, targetID uuid.UUID, metadata map[string]interface{}) error {
	return l.LogEvent(ctx, Event{
		Type:        eventType,
		Severity:    SeverityInfo,
		Description: description,
		TargetID:    &targetID,
		Success:     true,
		Metadata:    metadata,
	})
}

// LogEvent logs an audit event with all details
func (l *Logger) LogEvent(c context.Context, event Event) error {
	entry := models.AuditLog{
		UserID:      event.UserID,
		TargetID:    event.TargetID,
		EventType:   string(event.Type),
		Severity:    string(event.Severity),
		Description: event.Description,
		Success:     event.Success,
		CreatedAt:   l.now(),
	}
	if event.Metadata != nil {
		entry.Metadata = models.JSON(event.Metadata)
	}

	// Extract actor, IP and user agent when called from a request handler
	if gc, ok := c.(*gin.Context); ok {
		if entry.UserID == nil {
			if id, exists := gc.Get("user_id"); exists {
				switch v := id.(type) {
				case uuid.UUID:
					entry.UserID = &v
				case string:
					if parsed, err := uuid.Parse(v); err == nil {
						entry.UserID = &parsed
					}
				}
			}
		}
		entry.IPAddress = gc.ClientIP()
		entry.UserAgent = gc.GetHeader("User-Agent")
	}

	return l.sink.CreateAuditLog(c, &entry)
}
