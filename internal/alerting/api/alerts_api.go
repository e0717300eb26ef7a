package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/lifecycle"
)

// FireAlert implements POST /v1/alerts. Re-firing an open alert id returns
// the existing row with 200 instead of 201.
func (api *Api) FireAlert(c *gin.Context) {
	var req lifecycle.FireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	alert, created, err := api.Manager.FireAlert(c.Request.Context(), &req)
	if err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, alert)
}

// ListAlerts implements GET /v1/alerts?resolved=&severity=&instance=&limit=.
func (api *Api) ListAlerts(c *gin.Context) {
	opts := lifecycle.ListOptions{Limit: 100}
	if v := strings.TrimSpace(c.Query("resolved")); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", "resolved must be a boolean")
			return
		}
		opts.IncludeResolved = include
	}
	opts.Severity = strings.TrimSpace(c.Query("severity"))
	opts.InstanceName = strings.TrimSpace(c.Query("instance"))
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be 1-1000")
			return
		}
		opts.Limit = limit
	}

	alerts, err := api.Manager.Alerts.List(c.Request.Context(), opts)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": alerts})
}

// GetAlert implements GET /v1/alerts/:alertID by internal row id.
func (api *Api) GetAlert(c *gin.Context) {
	alert, err := api.Manager.Alerts.Get(c.Request.Context(), c.Param("alertID"))
	if errors.Is(err, lifecycle.ErrNotFound) {
		apiError(c, http.StatusNotFound, "NOT_FOUND", "alert not found")
		return
	}
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert implements POST /v1/alerts/:alertID/ack.
func (api *Api) AcknowledgeAlert(c *gin.Context) {
	alert, err := api.Manager.Acknowledge(c.Request.Context(), c.Param("alertID"))
	if errors.Is(err, lifecycle.ErrNotFound) {
		apiError(c, http.StatusNotFound, "NOT_FOUND", "alert not found")
		return
	}
	if err != nil {
		apiError(c, http.StatusConflict, "INVALID_STATE", err.Error())
		return
	}
	c.JSON(http.StatusOK, alert)
}

type resolveRequest struct {
	Notify *bool `json:"notify"`
}

// ResolveAlert implements POST /v1/alerts/:alertID/resolve. A resolution
// notice goes out unless the body carries notify=false.
func (api *Api) ResolveAlert(c *gin.Context) {
	notify := true
	if c.Request.ContentLength > 0 {
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
			return
		}
		if req.Notify != nil {
			notify = *req.Notify
		}
	}
	alert, err := api.Manager.Resolve(c.Request.Context(), c.Param("alertID"), notify)
	if errors.Is(err, lifecycle.ErrNotFound) {
		apiError(c, http.StatusNotFound, "NOT_FOUND", "alert not found")
		return
	}
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ListAlertNotifications implements GET /v1/alerts/:alertID/notifications,
// the delivery history for one alert row.
func (api *Api) ListAlertNotifications(c *gin.Context) {
	results, err := api.Results.ListForAlert(c.Request.Context(), c.Param("alertID"))
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": results})
}

// ListPolicies implements GET /v1/policies.
func (api *Api) ListPolicies(c *gin.Context) {
	policies, err := api.Policies.ListPolicies(c.Request.Context())
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": policies})
}
