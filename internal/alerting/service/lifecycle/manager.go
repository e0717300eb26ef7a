package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/policy"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/suppression"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager owns alert state transitions: firing, acknowledgement, resolution,
// and the operator-facing silence shortcuts. Escalation timing lives in the
// escalation engine; the manager only moves alerts in and out of its reach.
type Manager struct {
	Alerts     AlertStore
	Policies   policy.Store
	Silences   suppression.SilenceWriter
	Dispatcher ResolutionNotifier
	Cache      StateCache
	Clock      model.Clock
}

func NewManager(alerts AlertStore, policies policy.Store, silences suppression.SilenceWriter, dispatcher ResolutionNotifier, cache StateCache, clock model.Clock) *Manager {
	if cache == nil {
		cache = NoopStateCache{}
	}
	if clock == nil {
		clock = model.SystemClock{}
	}
	return &Manager{Alerts: alerts, Policies: policies, Silences: silences, Dispatcher: dispatcher, Cache: cache, Clock: clock}
}

// FireRequest is the inbound shape for a new firing.
type FireRequest struct {
	AlertID      string            `json:"alertId"`
	AlertType    string            `json:"alertType"`
	Severity     string            `json:"severity"`
	Message      string            `json:"message"`
	InstanceName string            `json:"instanceName"`
	PolicyID     string            `json:"policyId"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (r *FireRequest) validate() error {
	if r.AlertID == "" {
		return fmt.Errorf("alertId is required")
	}
	if r.AlertType == "" {
		return fmt.Errorf("alertType is required")
	}
	if r.PolicyID == "" {
		return fmt.Errorf("policyId is required")
	}
	return model.ValidateSeverity(r.Severity)
}

// FireAlert records a firing. Re-firing an alert id that already has an
// unresolved row is a no-op returning the existing row, so monitoring rules
// can report the same condition every evaluation without duplicating pages.
// The bool is true when a new row was created.
func (m *Manager) FireAlert(ctx context.Context, req *FireRequest) (*model.ActiveAlert, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	if _, err := m.Policies.GetPolicy(ctx, req.PolicyID); err != nil {
		return nil, false, fmt.Errorf("policy %s: %w", req.PolicyID, err)
	}

	existing, err := m.Alerts.GetOpenByAlertID(ctx, req.AlertID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup open alert %s: %w", req.AlertID, err)
	}

	alert := &model.ActiveAlert{
		ID:           uuid.NewString(),
		AlertID:      req.AlertID,
		AlertType:    req.AlertType,
		Severity:     req.Severity,
		Message:      req.Message,
		InstanceName: req.InstanceName,
		FiredAt:      m.Clock.Now(),
		PolicyID:     req.PolicyID,
		Metadata:     req.Metadata,
	}
	if err := m.Alerts.Insert(ctx, alert); err != nil {
		// Partial unique index on (alert_id) WHERE NOT resolved backstops a
		// concurrent double-fire: fall back to the winner's row.
		if winner, lookupErr := m.Alerts.GetOpenByAlertID(ctx, req.AlertID); lookupErr == nil {
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("insert alert %s: %w", req.AlertID, err)
	}
	m.Cache.SetState(ctx, alert)
	log.Info().
		Str("alert_id", alert.AlertID).
		Str("alert_type", alert.AlertType).
		Str("severity", alert.Severity).
		Str("instance", alert.InstanceName).
		Msg("alert fired")
	return alert, true, nil
}

// Acknowledge pauses escalation for the alert without closing it. The
// escalation engine's selection query excludes acknowledged rows, so the
// pause takes effect on the next cycle.
func (m *Manager) Acknowledge(ctx context.Context, id string) (*model.ActiveAlert, error) {
	alert, err := m.Alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Resolved {
		return nil, fmt.Errorf("alert %s is already resolved", id)
	}
	now := m.Clock.Now()
	ok, err := m.Alerts.Acknowledge(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	if ok {
		alert.Acknowledged = true
		alert.AcknowledgedAt = &now
		m.Cache.SetState(ctx, alert)
		log.Info().Str("alert_id", alert.AlertID).Msg("alert acknowledged")
	}
	return alert, nil
}

// Resolve closes the alert. Resolving an already-resolved alert is a no-op.
// With notify set, a one-shot resolution notice goes to the channels of the
// tier the alert last reached (the first tier when it never escalated), so
// whoever was paged learns the incident is over.
func (m *Manager) Resolve(ctx context.Context, id string, notify bool) (*model.ActiveAlert, error) {
	alert, err := m.Alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.Clock.Now()
	ok, err := m.Alerts.Resolve(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("resolve alert %s: %w", id, err)
	}
	if !ok {
		return alert, nil
	}
	alert.Resolved = true
	alert.ResolvedAt = &now
	m.Cache.DropState(ctx, alert.AlertID)
	log.Info().Str("alert_id", alert.AlertID).Int("tier", alert.CurrentTier).Msg("alert resolved")

	if notify {
		m.sendResolutionNotice(ctx, alert)
	}
	return alert, nil
}

// sendResolutionNotice is best effort: the alert is already resolved and a
// delivery failure must not reopen or fail the operation.
func (m *Manager) sendResolutionNotice(ctx context.Context, alert *model.ActiveAlert) {
	pol, err := m.Policies.GetPolicy(ctx, alert.PolicyID)
	if err != nil {
		log.Error().Err(err).Str("alert_id", alert.AlertID).Msg("resolution notice skipped; policy unavailable")
		return
	}
	tier := pol.Tier(alert.CurrentTier)
	if tier == nil {
		tier = pol.Tier(1)
	}
	if tier == nil {
		log.Warn().Str("alert_id", alert.AlertID).Msg("resolution notice skipped; policy has no tiers")
		return
	}
	if _, err := m.Dispatcher.DispatchResolution(ctx, alert, tier); err != nil {
		log.Error().Err(err).Str("alert_id", alert.AlertID).Msg("resolution notice dispatch failed")
	}
}

// CreateSilence validates and persists an operator-authored silence.
func (m *Manager) CreateSilence(ctx context.Context, s *model.AlertSilence) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := m.Silences.CreateSilence(ctx, s); err != nil {
		return fmt.Errorf("create silence: %w", err)
	}
	log.Info().Str("silence_id", s.ID).Time("ends_at", s.EndsAt).Msg("silence created")
	return nil
}

// CreateQuickSilence silences the exact (alertType, instanceName) pair for
// the duration, starting now. This is the "shut it up while I look" button
// and needs no open alert row.
func (m *Manager) CreateQuickSilence(ctx context.Context, alertType, instanceName string, d time.Duration, createdBy string) (*model.AlertSilence, error) {
	if d <= 0 {
		return nil, fmt.Errorf("silence duration must be positive")
	}
	if alertType == "" {
		return nil, fmt.Errorf("alertType is required")
	}
	if instanceName == "" {
		return nil, fmt.Errorf("instanceName is required")
	}
	now := m.Clock.Now()
	s := &model.AlertSilence{
		ID: uuid.NewString(),
		Matchers: []model.Matcher{
			{Field: "alertType", Kind: model.MatchExact, Value: alertType},
			{Field: "instanceName", Kind: model.MatchExact, Value: instanceName},
		},
		StartsAt:  now,
		EndsAt:    now.Add(d),
		Comment:   fmt.Sprintf("quick silence for %s on %s", alertType, instanceName),
		CreatedBy: createdBy,
	}
	if err := m.Silences.CreateSilence(ctx, s); err != nil {
		return nil, fmt.Errorf("create quick silence: %w", err)
	}
	log.Info().
		Str("silence_id", s.ID).
		Str("alert_type", alertType).
		Str("instance", instanceName).
		Dur("duration", d).
		Msg("quick silence created")
	return s, nil
}

// CreateQuickSilenceForAlert resolves the alert row and quick-silences its
// type and instance pair.
func (m *Manager) CreateQuickSilenceForAlert(ctx context.Context, alertRowID string, d time.Duration, createdBy string) (*model.AlertSilence, error) {
	alert, err := m.Alerts.Get(ctx, alertRowID)
	if err != nil {
		return nil, err
	}
	return m.CreateQuickSilence(ctx, alert.AlertType, alert.InstanceName, d, createdBy)
}

// ExpireSilence ends a silence now instead of waiting for its endsAt.
func (m *Manager) ExpireSilence(ctx context.Context, id string) error {
	if err := m.Silences.ExpireSilence(ctx, id, m.Clock.Now()); err != nil {
		return err
	}
	log.Info().Str("silence_id", id).Msg("silence expired")
	return nil
}
