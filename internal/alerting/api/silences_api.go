package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/lifecycle"
)

// CreateSilence implements POST /v1/silences.
func (api *Api) CreateSilence(c *gin.Context) {
	var s model.AlertSilence
	if err := c.ShouldBindJSON(&s); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	if err := api.Manager.CreateSilence(c.Request.Context(), &s); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	c.JSON(http.StatusCreated, s)
}

type quickSilenceRequest struct {
	AlertType    string `json:"alertType"`
	InstanceName string `json:"instanceName"`
	AlertID      string `json:"alertId"`  // internal alert row id, alternative to the field pair
	Duration     string `json:"duration"` // time.ParseDuration syntax, e.g. "2h"
	CreatedBy    string `json:"createdBy"`
}

// CreateQuickSilence implements POST /v1/silences/quick: silence an exact
// (alertType, instanceName) pair for a duration starting now. Passing an
// alert row id instead derives the pair from that alert.
func (api *Api) CreateQuickSilence(c *gin.Context) {
	var req quickSilenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", "duration must be a Go duration, e.g. \"2h\"")
		return
	}
	var s *model.AlertSilence
	if req.AlertID != "" {
		s, err = api.Manager.CreateQuickSilenceForAlert(c.Request.Context(), req.AlertID, d, req.CreatedBy)
	} else {
		s, err = api.Manager.CreateQuickSilence(c.Request.Context(), req.AlertType, req.InstanceName, d, req.CreatedBy)
	}
	if errors.Is(err, lifecycle.ErrNotFound) {
		apiError(c, http.StatusNotFound, "NOT_FOUND", "alert not found")
		return
	}
	if err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	c.JSON(http.StatusCreated, s)
}

// ListSilences implements GET /v1/silences, returning silences active now.
func (api *Api) ListSilences(c *gin.Context) {
	silences, err := api.Silences.ActiveSilences(c.Request.Context(), api.Clock.Now())
	if err != nil {
		apiError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": silences})
}

// ExpireSilence implements DELETE /v1/silences/:silenceID as manual expiry;
// the row stays for audit.
func (api *Api) ExpireSilence(c *gin.Context) {
	err := api.Manager.ExpireSilence(c.Request.Context(), c.Param("silenceID"))
	if err != nil {
		apiError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
