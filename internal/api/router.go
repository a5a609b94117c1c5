// Package api exposes the operator HTTP surface: rule and slot CRUD,
// the alert history view with its audit trail, camera health, and the
// Prometheus scrape endpoint.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/monitor"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

// Stores bundles the storage collaborators the API reads and writes.
type Stores struct {
	Rules  storage.RuleStore
	Slots  storage.SlotStore
	Alerts storage.AlertStore
	Audit  storage.AuditSink
}

// NewRouter wires the operator endpoints.
// Public: /healthz, /metrics
// Operator API under /api/v1: rules, slots, alerts, cameras.
func NewRouter(logger *zap.Logger, stores Stores, tracker *monitor.CameraTracker) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{logger: logger.Named("api"), stores: stores, tracker: tracker}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/rules", h.listRules)
		v1.GET("/rules/:id", h.getRule)
		v1.PUT("/rules/:id", h.putRule)
		v1.DELETE("/rules/:id", h.deleteRule)

		v1.GET("/slots", h.listSlots)
		v1.PUT("/slots/:id", h.putSlot)

		v1.GET("/alerts", h.listAlerts)
		v1.GET("/alerts/:id", h.getAlert)
		v1.GET("/alerts/:id/audit", h.getAlertAudit)

		v1.GET("/cameras", h.listCameras)
	}

	return r
}
