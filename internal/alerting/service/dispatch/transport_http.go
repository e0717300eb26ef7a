package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/rs/zerolog/log"
)

const maxResponseBody = 4 << 10

// HTTPTransport delivers webhook-style channels over HTTP POST. Each call
// carries its own timeout so one slow channel cannot stall the cycle for the
// rest.
type HTTPTransport struct {
	client         *http.Client
	defaultTimeout time.Duration
}

// NewHTTPTransport builds a transport with the given per-send default
// timeout; channels can override it via a "timeout" config entry.
func NewHTTPTransport(defaultTimeout time.Duration) *HTTPTransport {
	if defaultTimeout <= 0 {
		defaultTimeout = 15 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		defaultTimeout: defaultTimeout,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, ch *model.NotificationChannel, payload []byte) *SendResult {
	switch ch.Type {
	case model.ChannelWebhook, model.ChannelSlack, model.ChannelPagerDuty:
		return t.post(ctx, ch, payload)
	case model.ChannelEmail:
		// Email relays through the console's mail forwarder webhook when
		// configured; otherwise the rendered message is logged for pickup.
		if ch.Config["url"] != "" {
			return t.post(ctx, ch, payload)
		}
		log.Info().Str("channel_id", ch.ID).RawJSON("mail", payload).Msg("email channel has no relay url; logged only")
		return &SendResult{Success: true}
	default:
		return &SendResult{Err: "unsupported channel type " + string(ch.Type)}
	}
}

func (t *HTTPTransport) post(ctx context.Context, ch *model.NotificationChannel, payload []byte) *SendResult {
	url := ch.Config["url"]
	if url == "" {
		return &SendResult{Err: "channel config missing url"}
	}

	timeout := t.defaultTimeout
	if raw := ch.Config["timeout"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &SendResult{Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := ch.Config["token"]; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &SendResult{Err: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res := &SendResult{ResponseCode: resp.StatusCode, Body: string(body)}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Success = true
	} else {
		res.Err = "non-2xx response"
	}
	return res
}
