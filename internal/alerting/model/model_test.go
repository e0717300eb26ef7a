package model

import (
	"testing"
	"time"
)

func TestValidateSeverity(t *testing.T) {
	tests := []struct {
		name     string
		severity string
		wantErr  bool
	}{
		{name: "p0", severity: "P0", wantErr: false},
		{name: "p3", severity: "P3", wantErr: false},
		{name: "lowercase", severity: "p1", wantErr: true},
		{name: "empty", severity: "", wantErr: true},
		{name: "out_of_range", severity: "P4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeverity(tt.severity)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSeverity(%q) error = %v, wantErr %v", tt.severity, err, tt.wantErr)
			}
		})
	}
}

func TestActiveAlertField(t *testing.T) {
	alert := &ActiveAlert{
		AlertID:      "cpu-high",
		AlertType:    "cpu_usage",
		Severity:     SeverityP1,
		Message:      "cpu above 90%",
		InstanceName: "pg-primary-1",
		Metadata:     map[string]string{"datacenter": "eu-west"},
	}

	tests := []struct {
		field string
		want  string
		found bool
	}{
		{field: "alertType", want: "cpu_usage", found: true},
		{field: "alert_type", want: "cpu_usage", found: true},
		{field: "severity", want: "P1", found: true},
		{field: "instanceName", want: "pg-primary-1", found: true},
		{field: "instance", want: "pg-primary-1", found: true},
		{field: "message", want: "cpu above 90%", found: true},
		{field: "datacenter", want: "eu-west", found: true},
		{field: "unknown", want: "", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := alert.Field(tt.field)
			if got != tt.want || ok != tt.found {
				t.Errorf("Field(%q) = (%q, %v), want (%q, %v)", tt.field, got, ok, tt.want, tt.found)
			}
		})
	}
}

func TestAlertSilenceActiveAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	expired := start.Add(30 * time.Minute)

	s := AlertSilence{StartsAt: start, EndsAt: end}
	if s.ActiveAt(start.Add(-time.Second)) {
		t.Error("active before startsAt")
	}
	if !s.ActiveAt(start) {
		t.Error("startsAt itself must be covered")
	}
	if !s.ActiveAt(end.Add(-time.Second)) {
		t.Error("inactive just before endsAt")
	}
	if s.ActiveAt(end) {
		t.Error("endsAt itself must not be covered")
	}

	s.ExpiredAt = &expired
	if !s.ActiveAt(expired.Add(-time.Second)) {
		t.Error("inactive before manual expiry")
	}
	if s.ActiveAt(expired) {
		t.Error("active at manual expiry instant")
	}
}

func TestAlertSilenceValidate(t *testing.T) {
	start := time.Now()
	valid := AlertSilence{
		Matchers: []Matcher{{Field: "severity", Kind: MatchExact, Value: "P0"}},
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid silence rejected: %v", err)
	}

	noMatchers := valid
	noMatchers.Matchers = nil
	if err := noMatchers.Validate(); err == nil {
		t.Error("silence without matchers accepted")
	}

	inverted := valid
	inverted.EndsAt = start.Add(-time.Hour)
	if err := inverted.Validate(); err == nil {
		t.Error("silence with endsAt before startsAt accepted")
	}

	badKind := valid
	badKind.Matchers = []Matcher{{Field: "severity", Kind: "glob", Value: "P*"}}
	if err := badKind.Validate(); err == nil {
		t.Error("silence with unknown matcher kind accepted")
	}
}

func TestMaintenanceWindowCovers(t *testing.T) {
	alert := &ActiveAlert{AlertType: "replication_lag", InstanceName: "pg-replica-2"}

	tests := []struct {
		name   string
		window MaintenanceWindow
		want   bool
	}{
		{name: "no_filters_covers_all", window: MaintenanceWindow{}, want: true},
		{name: "instance_listed", window: MaintenanceWindow{InstanceFilter: []string{"pg-replica-2"}}, want: true},
		{name: "instance_not_listed", window: MaintenanceWindow{InstanceFilter: []string{"pg-primary-1"}}, want: false},
		{name: "type_listed", window: MaintenanceWindow{AlertTypeFilter: []string{"replication_lag"}}, want: true},
		{name: "type_not_listed", window: MaintenanceWindow{AlertTypeFilter: []string{"cpu_usage"}}, want: false},
		{
			name:   "both_filters_must_hold",
			window: MaintenanceWindow{InstanceFilter: []string{"pg-replica-2"}, AlertTypeFilter: []string{"cpu_usage"}},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Covers(alert); got != tt.want {
				t.Errorf("Covers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEscalationPolicyValidate(t *testing.T) {
	valid := EscalationPolicy{
		ID:   "default",
		Name: "default",
		Tiers: []EscalationTier{
			{Order: 1, Delay: 0, ChannelIDs: []string{"slack-ops"}},
			{Order: 2, Delay: 10 * time.Minute, ChannelIDs: []string{"pagerduty-oncall"}},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}

	gap := valid
	gap.Tiers = []EscalationTier{{Order: 1}, {Order: 3}}
	if err := gap.Validate(); err == nil {
		t.Error("policy with tier order gap accepted")
	}

	negative := valid
	negative.Tiers = []EscalationTier{{Order: 1, Delay: -time.Minute}}
	if err := negative.Validate(); err == nil {
		t.Error("policy with negative delay accepted")
	}

	empty := valid
	empty.Tiers = nil
	if err := empty.Validate(); err == nil {
		t.Error("policy without tiers accepted")
	}
}

func TestEscalationPolicyTierLookup(t *testing.T) {
	p := EscalationPolicy{Tiers: []EscalationTier{{Order: 1}, {Order: 2}, {Order: 3}}}
	if tier := p.Tier(2); tier == nil || tier.Order != 2 {
		t.Errorf("Tier(2) = %v", tier)
	}
	if tier := p.Tier(4); tier != nil {
		t.Errorf("Tier(4) = %v, want nil", tier)
	}
	if last := p.LastTier(); last == nil || last.Order != 3 {
		t.Errorf("LastTier() = %v", last)
	}
}

func TestNotificationChannelAccepts(t *testing.T) {
	alert := &ActiveAlert{AlertType: "disk_usage", Severity: SeverityP2, InstanceName: "pg-primary-1"}

	open := NotificationChannel{Type: ChannelWebhook}
	if !open.Accepts(alert) {
		t.Error("channel with no filters must accept")
	}

	filtered := NotificationChannel{
		Type:           ChannelSlack,
		SeverityFilter: []string{"P0", "P1"},
	}
	if filtered.Accepts(alert) {
		t.Error("P2 alert accepted by P0/P1 channel")
	}

	combined := NotificationChannel{
		Type:            ChannelSlack,
		SeverityFilter:  []string{"P2"},
		AlertTypeFilter: []string{"disk_usage"},
		InstanceFilter:  []string{"pg-primary-1"},
	}
	if !combined.Accepts(alert) {
		t.Error("alert matching every filter rejected")
	}
}

func TestDedupKeyDeterministic(t *testing.T) {
	a := DedupKey("alert-1", 2, "chan-1")
	b := DedupKey("alert-1", 2, "chan-1")
	if a != b {
		t.Errorf("same inputs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("key length = %d, want 32 hex chars", len(a))
	}
	if a == DedupKey("alert-1", 3, "chan-1") {
		t.Error("different tier produced identical key")
	}
	if a == DedupKey("alert-1", 2, "chan-2") {
		t.Error("different channel produced identical key")
	}
}
