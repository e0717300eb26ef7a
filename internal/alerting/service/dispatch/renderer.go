package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// Renderer builds the channel-type-specific payload for an alert
// notification. One renderer exists per channel type, selected from the
// closed enum; there is no runtime type inspection.
type Renderer interface {
	Render(alert *model.ActiveAlert, tier int, kind Kind, at time.Time) ([]byte, error)
}

// RendererFor returns the renderer for a channel type.
func RendererFor(t model.ChannelType) (Renderer, error) {
	switch t {
	case model.ChannelWebhook:
		return webhookRenderer{}, nil
	case model.ChannelSlack:
		return slackRenderer{}, nil
	case model.ChannelPagerDuty:
		return pagerDutyRenderer{}, nil
	case model.ChannelEmail:
		return emailRenderer{}, nil
	default:
		return nil, fmt.Errorf("no renderer for channel type %q", t)
	}
}

func title(alert *model.ActiveAlert, kind Kind) string {
	if kind == KindResolution {
		return fmt.Sprintf("[RESOLVED] %s on %s", alert.AlertType, alert.InstanceName)
	}
	return fmt.Sprintf("[%s] %s on %s", alert.Severity, alert.AlertType, alert.InstanceName)
}

type webhookRenderer struct{}

func (webhookRenderer) Render(alert *model.ActiveAlert, tier int, kind Kind, at time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"source":    "pg-console",
		"kind":      string(kind),
		"title":     title(alert, kind),
		"alert":     alert,
		"tier":      tier,
		"timestamp": at.UTC().Format(time.RFC3339Nano),
	})
}

type slackRenderer struct{}

func (slackRenderer) Render(alert *model.ActiveAlert, tier int, kind Kind, at time.Time) ([]byte, error) {
	text := fmt.Sprintf("%s\n%s\ninstance: %s, tier: %d, fired: %s",
		title(alert, kind), alert.Message, alert.InstanceName, tier,
		alert.FiredAt.UTC().Format(time.RFC3339))
	return json.Marshal(map[string]any{"text": text})
}

type pagerDutyRenderer struct{}

func (pagerDutyRenderer) Render(alert *model.ActiveAlert, tier int, kind Kind, at time.Time) ([]byte, error) {
	action := "trigger"
	if kind == KindResolution {
		action = "resolve"
	}
	return json.Marshal(map[string]any{
		"event_action": action,
		"dedup_key":    alert.AlertID,
		"payload": map[string]any{
			"summary":   title(alert, kind),
			"source":    alert.InstanceName,
			"severity":  pagerDutySeverity(alert.Severity),
			"timestamp": at.UTC().Format(time.RFC3339),
			"custom_details": map[string]any{
				"alert_type": alert.AlertType,
				"message":    alert.Message,
				"tier":       tier,
			},
		},
	})
}

func pagerDutySeverity(s string) string {
	switch s {
	case model.SeverityP0:
		return "critical"
	case model.SeverityP1:
		return "error"
	case model.SeverityP2:
		return "warning"
	default:
		return "info"
	}
}

type emailRenderer struct{}

func (emailRenderer) Render(alert *model.ActiveAlert, tier int, kind Kind, at time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"subject": title(alert, kind),
		"body": fmt.Sprintf("%s\n\nalert: %s\ninstance: %s\nseverity: %s\ntier: %d\nfired at: %s",
			alert.Message, alert.AlertType, alert.InstanceName, alert.Severity, tier,
			alert.FiredAt.UTC().Format(time.RFC3339)),
	})
}
