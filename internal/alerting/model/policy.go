package model

import (
	"fmt"
	"time"
)

// EscalationTier is one rung of a policy: wait Delay after the previous
// notification, then notify ChannelIDs.
type EscalationTier struct {
	Order      int           `json:"order"` // unique ascending, starts at 1
	Delay      time.Duration `json:"delay"`
	ChannelIDs []string      `json:"channelIds"`
}

// EscalationPolicy is an ordered list of tiers. RepeatCount controls how many
// times the final tier re-fires once the top is reached; 0 means the alert
// goes quiescent after the last tier.
type EscalationPolicy struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	RepeatCount int              `json:"repeatCount"`
	Tiers       []EscalationTier `json:"tiers"`
}

// Tier returns the tier with the given order, or nil when the order is past
// the top of the policy.
func (p *EscalationPolicy) Tier(order int) *EscalationTier {
	for i := range p.Tiers {
		if p.Tiers[i].Order == order {
			return &p.Tiers[i]
		}
	}
	return nil
}

// LastTier returns the highest tier, or nil for an empty policy.
func (p *EscalationPolicy) LastTier() *EscalationTier {
	if len(p.Tiers) == 0 {
		return nil
	}
	return &p.Tiers[len(p.Tiers)-1]
}

// Validate checks tier ordering: orders unique ascending from 1, delays
// non-negative.
func (p *EscalationPolicy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("policy %s has no tiers", p.ID)
	}
	for i, t := range p.Tiers {
		if t.Order != i+1 {
			return fmt.Errorf("policy %s: tier order %d at position %d, want %d", p.ID, t.Order, i, i+1)
		}
		if t.Delay < 0 {
			return fmt.Errorf("policy %s: tier %d has negative delay", p.ID, t.Order)
		}
	}
	if p.RepeatCount < 0 {
		return fmt.Errorf("policy %s: negative repeatCount", p.ID)
	}
	return nil
}
