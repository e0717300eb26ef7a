package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ListFailedNotifications implements GET /v1/notifications/failed?since=,
// the operator view of deliveries that need manual follow-up.
func (api *Api) ListFailedNotifications(c *gin.Context) {
	since := api.Clock.Now().Add(-24 * time.Hour)
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", "since must be ISO 8601 time")
			return
		}
		since = t
	}
	results, err := api.Results.FailedSince(c.Request.Context(), since)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": results})
}

// RunEscalationCycle implements POST /v1/escalation/run, forcing one pass of
// the escalation engine outside the scheduler tick.
func (api *Api) RunEscalationCycle(c *gin.Context) {
	if err := api.Engine.RunCycle(c.Request.Context()); err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]string{"status": "completed"})
}
