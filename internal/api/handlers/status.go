package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"battery-dispatch/internal/dispatch"
)

// SnapshotProvider exposes the last completed dispatch cycle.
type SnapshotProvider interface {
	Snapshot() (*dispatch.CycleResult, bool)
}

// StatusHandler serves the read-only view over the last cycle.
type StatusHandler struct {
	provider SnapshotProvider
}

func NewStatusHandler(provider SnapshotProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// GetStatus handles GET /api/v1/status.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	res, ok := h.provider.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{
			"code":    "NO_CYCLE",
			"message": "no dispatch cycle has completed yet",
		}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"at":                 res.At,
		"decision":           res.Decision,
		"price":              res.Price,
		"have_price":         res.HavePrice,
		"soc":                res.Flows.SoC,
		"target_soc":         res.TargetSoC,
		"diagnostic":         res.Diagnostic,
		"cap_soc":            res.CapSoC,
		"reservation_active": res.ReservationActive,
	})
}

// GetPlanToday handles GET /api/v1/plan/today.
func (h *StatusHandler) GetPlanToday(c *gin.Context) {
	res, ok := h.provider.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "NO_CYCLE", "message": "no dispatch cycle has completed yet"}})
		return
	}
	c.JSON(http.StatusOK, res.PlanToday)
}

// GetPlanTomorrow handles GET /api/v1/plan/tomorrow.
func (h *StatusHandler) GetPlanTomorrow(c *gin.Context) {
	res, ok := h.provider.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "NO_CYCLE", "message": "no dispatch cycle has completed yet"}})
		return
	}
	if res.PlanTomorrow == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"code":    "NO_TOMORROW",
			"message": "tomorrow's prices are not published yet",
		}})
		return
	}
	c.JSON(http.StatusOK, res.PlanTomorrow)
}
