package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity codes follow the console's paging levels.
const (
	SeverityP0 = "P0"
	SeverityP1 = "P1"
	SeverityP2 = "P2"
	SeverityP3 = "P3"
)

// ActiveAlert is one firing incident. At most one unresolved row exists per
// AlertID; the lifecycle manager enforces that at ingestion and the database
// backs it with a partial unique index.
type ActiveAlert struct {
	ID                 string            `json:"id"`
	AlertID            string            `json:"alertId"` // external correlation key (monitoring rule id)
	AlertType          string            `json:"alertType"`
	Severity           string            `json:"severity"`
	Message            string            `json:"message"`
	InstanceName       string            `json:"instanceName"`
	FiredAt            time.Time         `json:"firedAt"`
	LastNotificationAt *time.Time        `json:"lastNotificationAt,omitempty"`
	CurrentTier        int               `json:"currentTier"` // 0 = not yet escalated
	PolicyID           string            `json:"policyId"`
	RepeatsUsed        int               `json:"repeatsUsed"`
	Acknowledged       bool              `json:"acknowledged"`
	AcknowledgedAt     *time.Time        `json:"acknowledgedAt,omitempty"`
	Resolved           bool              `json:"resolved"`
	ResolvedAt         *time.Time        `json:"resolvedAt,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`

	// Version is the optimistic concurrency token; every tier advance must
	// carry the version it read.
	Version int64 `json:"version"`
}

// Open reports whether the alert is still a candidate for escalation.
func (a *ActiveAlert) Open() bool {
	return !a.Resolved && !a.Acknowledged
}

// NotifiedBase is the reference time for due computation: the last
// notification, or FiredAt when no tier has dispatched yet.
func (a *ActiveAlert) NotifiedBase() time.Time {
	if a.LastNotificationAt != nil {
		return *a.LastNotificationAt
	}
	return a.FiredAt
}

// Field resolves a matcher field name against the alert, matching the
// attribute names silences are written against.
func (a *ActiveAlert) Field(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "alertid", "alert_id":
		return a.AlertID, true
	case "alerttype", "alert_type":
		return a.AlertType, true
	case "severity":
		return a.Severity, true
	case "instancename", "instance_name", "instance":
		return a.InstanceName, true
	case "message":
		return a.Message, true
	}
	if a.Metadata != nil {
		if v, ok := a.Metadata[name]; ok {
			return v, true
		}
	}
	return "", false
}

// ValidateSeverity rejects severities outside the closed paging-level set.
func ValidateSeverity(s string) error {
	switch s {
	case SeverityP0, SeverityP1, SeverityP2, SeverityP3:
		return nil
	}
	return fmt.Errorf("invalid severity %q", s)
}
