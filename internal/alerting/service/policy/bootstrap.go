package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout for seeding channels and escalation policies.
type SeedFile struct {
	Channels []SeedChannel `yaml:"channels"`
	Policies []SeedPolicy  `yaml:"policies"`
}

type SeedChannel struct {
	ID               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	Type             string            `yaml:"type"`
	Config           map[string]string `yaml:"config"`
	SeverityFilter   []string          `yaml:"severityFilter"`
	AlertTypeFilter  []string          `yaml:"alertTypeFilter"`
	InstanceFilter   []string          `yaml:"instanceFilter"`
	RateLimitPerHour int               `yaml:"rateLimitPerHour"`
	Enabled          *bool             `yaml:"enabled"` // nil defaults to true
	TestMode         bool              `yaml:"testMode"`
}

type SeedPolicy struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	RepeatCount int        `yaml:"repeatCount"`
	Tiers       []SeedTier `yaml:"tiers"`
}

type SeedTier struct {
	Order    int      `yaml:"order"`
	Delay    string   `yaml:"delay"` // time.ParseDuration syntax, e.g. "10m"
	Channels []string `yaml:"channels"`
}

// BootstrapFromConfig seeds notification channels and escalation policies
// from a YAML file, inserting only rows that do not exist yet. Missing file
// path means no seeding.
func BootstrapFromConfig(ctx context.Context, db *adb.Database, configFile string) error {
	if db == nil || strings.TrimSpace(configFile) == "" {
		return nil
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("read policy seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return err
	}

	for i := range seed.Channels {
		ch := seedChannelToModel(&seed.Channels[i])
		if err := ch.Validate(); err != nil {
			log.Error().Err(err).Str("channel_id", ch.ID).Msg("skipping invalid seed channel")
			continue
		}
		if err := insertChannel(ctx, db, ch); err != nil {
			log.Error().Err(err).Str("channel_id", ch.ID).Msg("seed channel insert failed")
		}
	}

	store := NewPgStore(db)
	for i := range seed.Policies {
		p, err := SeedPolicyToModel(&seed.Policies[i])
		if err != nil {
			log.Error().Err(err).Str("policy_id", seed.Policies[i].ID).Msg("skipping invalid seed policy")
			continue
		}
		if err := store.upsertPolicy(ctx, p); err != nil {
			log.Error().Err(err).Str("policy_id", p.ID).Msg("seed policy insert failed")
		}
	}
	log.Info().Int("channels", len(seed.Channels)).Int("policies", len(seed.Policies)).Msg("policy bootstrap completed")
	return nil
}

// ParseSeed parses and minimally checks a seed file.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse policy seed file: %w", err)
	}
	return &seed, nil
}

// SeedPolicyToModel converts and validates one seed policy.
func SeedPolicyToModel(sp *SeedPolicy) (*model.EscalationPolicy, error) {
	p := &model.EscalationPolicy{ID: sp.ID, Name: sp.Name, RepeatCount: sp.RepeatCount}
	for _, st := range sp.Tiers {
		delay := time.Duration(0)
		if st.Delay != "" {
			d, err := time.ParseDuration(st.Delay)
			if err != nil {
				return nil, fmt.Errorf("policy %s tier %d: parse delay %q: %w", sp.ID, st.Order, st.Delay, err)
			}
			delay = d
		}
		p.Tiers = append(p.Tiers, model.EscalationTier{Order: st.Order, Delay: delay, ChannelIDs: st.Channels})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func seedChannelToModel(sc *SeedChannel) *model.NotificationChannel {
	enabled := true
	if sc.Enabled != nil {
		enabled = *sc.Enabled
	}
	return &model.NotificationChannel{
		ID:               sc.ID,
		Name:             sc.Name,
		Type:             model.ChannelType(sc.Type),
		Config:           sc.Config,
		SeverityFilter:   sc.SeverityFilter,
		AlertTypeFilter:  sc.AlertTypeFilter,
		InstanceFilter:   sc.InstanceFilter,
		RateLimitPerHour: sc.RateLimitPerHour,
		Enabled:          enabled,
		TestMode:         sc.TestMode,
	}
}

func insertChannel(ctx context.Context, db *adb.Database, ch *model.NotificationChannel) error {
	configJSON, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("marshal channel config: %w", err)
	}
	const q = `
	INSERT INTO notification_channels
		(id, name, type, config, severity_filter, alert_type_filter, instance_filter,
		 rate_limit_per_hour, enabled, test_mode)
	VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`
	_, err = db.ExecContext(ctx, q, ch.ID, ch.Name, string(ch.Type), string(configJSON),
		pq.Array(ch.SeverityFilter), pq.Array(ch.AlertTypeFilter), pq.Array(ch.InstanceFilter),
		ch.RateLimitPerHour, ch.Enabled, ch.TestMode)
	if err != nil {
		return fmt.Errorf("insert channel %s: %w", ch.ID, err)
	}
	return nil
}
