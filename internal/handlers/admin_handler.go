package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/middleware"
	"github.com/stakevault/backend/internal/queue"
)

// Resolver applies an approval decision
type Resolver interface {
	Resolve(ctx context.Context, decision approval.Decision) error
}

// QueueInspector reports background queue depth
type QueueInspector interface {
	Stats(ctx context.Context, jobType queue.JobType) (*queue.QueueStats, error)
}

// AdminHandler lets operators decide on pending items over HTTP, the same
// way the Telegram buttons do
type AdminHandler struct {
	resolver Resolver
	queues   QueueInspector
}

// NewAdminHandler creates a new admin handler. queues may be nil.
func NewAdminHandler(resolver Resolver, queues QueueInspector) *AdminHandler {
	return &AdminHandler{resolver: resolver, queues: queues}
}

type decisionRequest struct {
	Verdict string `json:"verdict" binding:"required,oneof=approve reject"`
	Reason  string `json:"reason"`
}

// Decide approves or rejects /admin/approvals/:kind/:id
func (h *AdminHandler) Decide(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req decisionRequest
	if !bind(c, &req) {
		return
	}

	actor := "admin"
	if email := c.GetString(middleware.ContextEmail); email != "" {
		actor = email
	}
	decision := approval.Decision{
		Kind:    approval.Kind(c.Param("kind")),
		ID:      id,
		Verdict: approval.Verdict(req.Verdict),
		Reason:  req.Reason,
		Actor:   actor,
	}
	if err := h.resolver.Resolve(c.Request.Context(), decision); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": decision})
}

// GetQueueStats reports waiting and delayed jobs per type
func (h *AdminHandler) GetQueueStats(c *gin.Context) {
	if h.queues == nil {
		c.JSON(http.StatusOK, gin.H{"data": []queue.QueueStats{}})
		return
	}
	var stats []queue.QueueStats
	for _, jobType := range []queue.JobType{queue.JobTypeNotifyApproval, queue.JobTypeProfitSummary} {
		s, err := h.queues.Stats(c.Request.Context(), jobType)
		if err != nil {
			respondError(c, err)
			return
		}
		stats = append(stats, *s)
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
