package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Result statuses. Only attempted rows (success or failure) count toward a
// channel's rate limit; rate_limited and skipped rows are audit records.
const (
	ResultAttempted   = "attempted"
	ResultRateLimited = "rate_limited"
	ResultSkipped     = "skipped"
)

// NotificationResult is one append-only history row per dispatch decision.
type NotificationResult struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channelId"`
	AlertID      string    `json:"alertId"` // ActiveAlert row id
	Tier         int       `json:"tier"`
	SentAt       time.Time `json:"sentAt"`
	Status       string    `json:"status"`
	Success      bool      `json:"success"`
	ResponseCode int       `json:"responseCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	DedupKey     string    `json:"dedupKey"`
}

// DedupKey derives the deterministic per-(alert, tier, channel) delivery key.
func DedupKey(alertID string, tier int, channelID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", alertID, tier, channelID)))
	return hex.EncodeToString(sum[:16])
}
