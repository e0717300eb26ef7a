package model

import (
	"fmt"
	"time"
)

// ChannelType is the closed set of delivery mechanisms.
type ChannelType string

const (
	ChannelWebhook   ChannelType = "webhook"
	ChannelSlack     ChannelType = "slack"
	ChannelPagerDuty ChannelType = "pagerduty"
	ChannelEmail     ChannelType = "email"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelWebhook, ChannelSlack, ChannelPagerDuty, ChannelEmail:
		return true
	}
	return false
}

// NotificationChannel is a delivery target. The three filters are
// allow-lists; an empty list matches everything. A channel is eligible for an
// alert only when all three filters accept it.
type NotificationChannel struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Type             ChannelType       `json:"type"`
	Config           map[string]string `json:"config"` // type-specific, e.g. webhook url
	SeverityFilter   []string          `json:"severityFilter,omitempty"`
	AlertTypeFilter  []string          `json:"alertTypeFilter,omitempty"`
	InstanceFilter   []string          `json:"instanceFilter,omitempty"`
	RateLimitPerHour int               `json:"rateLimitPerHour"` // 0 = unlimited
	Enabled          bool              `json:"enabled"`
	TestMode         bool              `json:"testMode"` // dispatch but do not deliver
	LastUsedAt       *time.Time        `json:"lastUsedAt,omitempty"`
}

// Accepts applies the channel's three filters against the alert.
func (c *NotificationChannel) Accepts(a *ActiveAlert) bool {
	return listAccepts(c.SeverityFilter, a.Severity) &&
		listAccepts(c.AlertTypeFilter, a.AlertType) &&
		listAccepts(c.InstanceFilter, a.InstanceName)
}

func listAccepts(allow []string, v string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, item := range allow {
		if item == v {
			return true
		}
	}
	return false
}

// Validate checks the channel configuration.
func (c *NotificationChannel) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("channel id is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("channel %s: unknown type %q", c.ID, c.Type)
	}
	if c.RateLimitPerHour < 0 {
		return fmt.Errorf("channel %s: negative rateLimitPerHour", c.ID)
	}
	return nil
}
