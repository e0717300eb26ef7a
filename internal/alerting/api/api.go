package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/dispatch"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/lifecycle"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/policy"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/suppression"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CycleRunner triggers one escalation pass on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Api exposes the alerting subsystem over HTTP.
type Api struct {
	Manager  *lifecycle.Manager
	Engine   CycleRunner
	Silences suppression.Store
	Results  dispatch.ResultStore
	Policies policy.Store
	Clock    model.Clock
}

// Deps carries the services the API fronts.
type Deps struct {
	Manager  *lifecycle.Manager
	Engine   CycleRunner
	Silences suppression.Store
	Results  dispatch.ResultStore
	Policies policy.Store
	Clock    model.Clock
}

func NewApi(router *gin.Engine, deps Deps) *Api {
	if deps.Clock == nil {
		deps.Clock = model.SystemClock{}
	}
	api := &Api{
		Manager:  deps.Manager,
		Engine:   deps.Engine,
		Silences: deps.Silences,
		Results:  deps.Results,
		Policies: deps.Policies,
		Clock:    deps.Clock,
	}
	api.setupRouters(router)
	return api
}

func (api *Api) setupRouters(router *gin.Engine) {
	router.POST("/v1/alerts", api.FireAlert)
	router.GET("/v1/alerts", api.ListAlerts)
	router.GET("/v1/alerts/:alertID", api.GetAlert)
	router.POST("/v1/alerts/:alertID/ack", api.AcknowledgeAlert)
	router.POST("/v1/alerts/:alertID/resolve", api.ResolveAlert)
	router.GET("/v1/alerts/:alertID/notifications", api.ListAlertNotifications)

	router.POST("/v1/silences", api.CreateSilence)
	router.POST("/v1/silences/quick", api.CreateQuickSilence)
	router.GET("/v1/silences", api.ListSilences)
	router.DELETE("/v1/silences/:silenceID", api.ExpireSilence)

	router.GET("/v1/policies", api.ListPolicies)
	router.GET("/v1/notifications/failed", api.ListFailedNotifications)
	router.POST("/v1/escalation/run", api.RunEscalationCycle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, map[string]string{"status": "ok"}) })
}

func apiError(c *gin.Context, status int, code, message string) {
	c.JSON(status, map[string]any{"error": map[string]any{"code": code, "message": message}})
}
