package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/middleware"
)

// statusFor maps a domain error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrDuplicatePendingRequest),
		errors.Is(err, apperrors.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidState),
		errors.Is(err, apperrors.ErrSameDayUpgrade):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrExternalApproval):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respond writes data with status, or the mapped error. When the state
// change was stored but the approver could not be told, the result is
// still returned as 202 with a warning.
func respond(c *gin.Context, status int, data interface{}, err error) {
	if err == nil {
		c.JSON(status, gin.H{"data": data})
		return
	}
	if errors.Is(err, apperrors.ErrExternalApproval) && data != nil {
		c.JSON(http.StatusAccepted, gin.H{"data": data, "warning": "saved, but the approval request could not be delivered yet"})
		return
	}
	respondError(c, err)
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// nilIfEmpty keeps a nil pointer from turning into a non-nil interface
func nilIfEmpty[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	return v
}
