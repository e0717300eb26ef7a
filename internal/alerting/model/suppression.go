package model

import (
	"fmt"
	"time"
)

// MatchKind selects how a Matcher compares its value.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchRegex MatchKind = "regex" // anchored full match
)

// Matcher compares one alert field against a value.
type Matcher struct {
	Field string    `json:"field"`
	Kind  MatchKind `json:"kind"`
	Value string    `json:"value"`
}

// AlertSilence withholds notifications for alerts whose fields satisfy every
// matcher (AND semantics) while startsAt <= now < endsAt.
type AlertSilence struct {
	ID        string     `json:"id"`
	Matchers  []Matcher  `json:"matchers"`
	StartsAt  time.Time  `json:"startsAt"`
	EndsAt    time.Time  `json:"endsAt"`
	Comment   string     `json:"comment,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	ExpiredAt *time.Time `json:"expiredAt,omitempty"` // manual expiry before endsAt
}

// ActiveAt reports whether the silence covers the instant t.
func (s *AlertSilence) ActiveAt(t time.Time) bool {
	if s.ExpiredAt != nil && !t.Before(*s.ExpiredAt) {
		return false
	}
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

// Validate checks the silence shape.
func (s *AlertSilence) Validate() error {
	if len(s.Matchers) == 0 {
		return fmt.Errorf("silence requires at least one matcher")
	}
	if !s.EndsAt.After(s.StartsAt) {
		return fmt.Errorf("silence endsAt must be after startsAt")
	}
	for i, m := range s.Matchers {
		if m.Field == "" {
			return fmt.Errorf("silence matcher %d: field is required", i)
		}
		if m.Kind != MatchExact && m.Kind != MatchRegex {
			return fmt.Errorf("silence matcher %d: unknown kind %q", i, m.Kind)
		}
	}
	return nil
}

// MaintenanceWindow suppresses by instance/alert-type allow-lists while its
// time range holds. Recurrence expansion happens upstream; the stored range
// is always the next concrete occurrence.
type MaintenanceWindow struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	StartsAt          time.Time `json:"startsAt"`
	EndsAt            time.Time `json:"endsAt"`
	InstanceFilter    []string  `json:"instanceFilter,omitempty"`
	AlertTypeFilter   []string  `json:"alertTypeFilter,omitempty"`
	Recurring         bool      `json:"recurring"`
	RecurrencePattern string    `json:"recurrencePattern,omitempty"`
}

// ActiveAt reports whether the window covers the instant t.
func (w *MaintenanceWindow) ActiveAt(t time.Time) bool {
	return !t.Before(w.StartsAt) && t.Before(w.EndsAt)
}

// Covers applies the window's filters against the alert.
func (w *MaintenanceWindow) Covers(a *ActiveAlert) bool {
	return listAccepts(w.InstanceFilter, a.InstanceName) &&
		listAccepts(w.AlertTypeFilter, a.AlertType)
}
