package dispatch

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

func unmarshalConfig(raw []byte, ch *model.NotificationChannel) error {
	ch.Config = map[string]string{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &ch.Config); err != nil {
		return fmt.Errorf("parse channel %s config: %w", ch.ID, err)
	}
	return nil
}

func scanResults(rows *sql.Rows) ([]model.NotificationResult, error) {
	var out []model.NotificationResult
	for rows.Next() {
		var r model.NotificationResult
		if err := rows.Scan(&r.ID, &r.ChannelID, &r.AlertID, &r.Tier, &r.SentAt,
			&r.Status, &r.Success, &r.ResponseCode, &r.ErrorMessage, &r.DedupKey); err != nil {
			return nil, fmt.Errorf("scan notification result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
