package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
	"github.com/heyhotcake/shelfeye/internal/monitor"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

type handlers struct {
	logger  *zap.Logger
	stores  Stores
	tracker *monitor.CameraTracker
}

func (h *handlers) listRules(c *gin.Context) {
	rules, err := h.stores.Rules.List(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to list rules", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *handlers) getRule(c *gin.Context) {
	rule, err := h.stores.Rules.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		h.serverError(c, "failed to load rule", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// putRule creates or replaces a rule. The path id wins over any id in
// the body.
func (h *handlers) putRule(c *gin.Context) {
	var rule model.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	rule.ID = c.Param("id")

	now := time.Now().UTC()
	existing, err := h.stores.Rules.Get(c.Request.Context(), rule.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rule.CreatedAt = now
	case err != nil:
		h.serverError(c, "failed to load rule", err)
		return
	default:
		rule.CreatedAt = existing.CreatedAt
	}
	rule.UpdatedAt = now

	if err := h.stores.Rules.Upsert(c.Request.Context(), &rule); err != nil {
		if errors.Is(err, storage.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule"})
			return
		}
		h.serverError(c, "failed to store rule", err)
		return
	}

	h.logger.Info("Rule stored",
		zap.String("rule_id", rule.ID),
		zap.String("type", string(rule.Type)),
		zap.Bool("enabled", rule.Enabled))
	c.JSON(http.StatusOK, rule)
}

func (h *handlers) deleteRule(c *gin.Context) {
	err := h.stores.Rules.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		h.serverError(c, "failed to delete rule", err)
		return
	}

	h.logger.Info("Rule deleted", zap.String("rule_id", c.Param("id")))
	c.Status(http.StatusNoContent)
}

func (h *handlers) listSlots(c *gin.Context) {
	slots, err := h.stores.Slots.List(c.Request.Context())
	if err != nil {
		h.serverError(c, "failed to list slots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func (h *handlers) putSlot(c *gin.Context) {
	var slot model.Slot
	if err := c.ShouldBindJSON(&slot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	slot.SlotID = c.Param("id")

	if err := h.stores.Slots.Upsert(c.Request.Context(), &slot); err != nil {
		if errors.Is(err, storage.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot"})
			return
		}
		h.serverError(c, "failed to store slot", err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// listAlerts is the operator history view: every entry ever queued,
// terminal or not, newest first.
func (h *handlers) listAlerts(c *gin.Context) {
	filters := storage.AlertFilters{
		Status:    model.AlertStatus(c.Query("status")),
		Type:      model.RuleType(c.Query("type")),
		SubjectID: c.Query("subject_id"),
	}
	if filters.Status != "" && !filters.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	if filters.Type != "" && !filters.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type filter"})
		return
	}

	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	entries, err := h.stores.Alerts.List(c.Request.Context(), filters, offset, limit)
	if err != nil {
		h.serverError(c, "failed to list alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": entries, "offset": offset, "limit": limit})
}

func (h *handlers) getAlert(c *gin.Context) {
	entry, err := h.stores.Alerts.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if err != nil {
		h.serverError(c, "failed to load alert", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// getAlertAudit returns the full transition trail for one entry, so an
// operator can see exactly why a notification was or was not sent.
func (h *handlers) getAlertAudit(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.stores.Alerts.Get(c.Request.Context(), id); errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	} else if err != nil {
		h.serverError(c, "failed to load alert", err)
		return
	}

	trail, err := h.stores.Audit.ListByEntry(c.Request.Context(), id)
	if err != nil {
		h.serverError(c, "failed to load audit trail", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry_id": id, "transitions": trail})
}

func (h *handlers) listCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": h.tracker.Snapshot()})
}

func (h *handlers) serverError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
