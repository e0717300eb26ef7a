package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

type fakeChannelStore struct {
	channels map[string]model.NotificationChannel
	touched  []string
	mu       sync.Mutex
}

func newFakeChannelStore(channels ...model.NotificationChannel) *fakeChannelStore {
	s := &fakeChannelStore{channels: map[string]model.NotificationChannel{}}
	for _, ch := range channels {
		s.channels[ch.ID] = ch
	}
	return s
}

func (s *fakeChannelStore) GetChannels(ctx context.Context, ids []string) ([]model.NotificationChannel, error) {
	var out []model.NotificationChannel
	for _, id := range ids {
		if ch, ok := s.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *fakeChannelStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

type fakeResultStore struct {
	mu        sync.Mutex
	rows      []model.NotificationResult
	insertErr error
}

func (s *fakeResultStore) Insert(ctx context.Context, r *model.NotificationResult) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *r)
	return nil
}

func (s *fakeResultStore) ReserveAttempt(ctx context.Context, r *model.NotificationResult, limit int, since time.Time) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 {
		n := 0
		for _, row := range s.rows {
			if row.ChannelID == r.ChannelID && row.Status == model.ResultAttempted && !row.SentAt.Before(since) {
				n++
			}
		}
		if n >= limit {
			return false, nil
		}
	}
	s.rows = append(s.rows, *r)
	return true, nil
}

func (s *fakeResultStore) FinalizeAttempt(ctx context.Context, id string, success bool, responseCode int, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Success = success
			s.rows[i].ResponseCode = responseCode
			s.rows[i].ErrorMessage = errorMessage
		}
	}
	return nil
}

func (s *fakeResultStore) HasSuccess(ctx context.Context, dedupKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.DedupKey == dedupKey && r.Status == model.ResultAttempted && r.Success {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeResultStore) CountAttemptedSince(ctx context.Context, channelID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.ChannelID == channelID && r.Status == model.ResultAttempted && !r.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeResultStore) FailedSince(ctx context.Context, since time.Time) ([]model.NotificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.NotificationResult
	for _, r := range s.rows {
		if r.Status == model.ResultAttempted && !r.Success && !r.SentAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeResultStore) ListForAlert(ctx context.Context, alertID string) ([]model.NotificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.NotificationResult
	for _, r := range s.rows {
		if r.AlertID == alertID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeTransport struct {
	mu    sync.Mutex
	sent  []string // channel ids in send order
	fails map[string]bool
}

func (t *fakeTransport) Send(ctx context.Context, ch *model.NotificationChannel, payload []byte) *SendResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, ch.ID)
	if t.fails[ch.ID] {
		return &SendResult{Success: false, ResponseCode: 502, Err: "bad gateway"}
	}
	return &SendResult{Success: true, ResponseCode: 200}
}

func (t *fakeTransport) sentCount(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sent {
		if s == id {
			n++
		}
	}
	return n
}

func dispatchAlert() *model.ActiveAlert {
	return &model.ActiveAlert{
		ID:           "row-1",
		AlertID:      "cpu-high",
		AlertType:    "cpu_usage",
		Severity:     model.SeverityP1,
		Message:      "cpu above 90%",
		InstanceName: "pg-primary-1",
		FiredAt:      testNow.Add(-time.Hour),
	}
}

func enabledChannel(id string) model.NotificationChannel {
	return model.NotificationChannel{ID: id, Name: id, Type: model.ChannelWebhook, Enabled: true, Config: map[string]string{"url": "http://example.invalid"}}
}

func newTestDispatcher(channels *fakeChannelStore, results *fakeResultStore, transport *fakeTransport) *Dispatcher {
	return NewDispatcher(channels, results, transport, nil, &manualClock{now: testNow})
}

func TestDispatchDeliversToEligibleChannels(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-a"), enabledChannel("ch-b"))
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-a", "ch-b"}}
	out, err := d.Dispatch(context.Background(), dispatchAlert(), tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, model.ResultAttempted, r.Status)
		assert.True(t, r.Success)
	}
	assert.ElementsMatch(t, []string{"ch-a", "ch-b"}, channels.touched)
}

func TestDispatchSkipsDisabledAndFiltered(t *testing.T) {
	disabled := enabledChannel("ch-off")
	disabled.Enabled = false
	filtered := enabledChannel("ch-p0")
	filtered.SeverityFilter = []string{"P0"}

	channels := newFakeChannelStore(enabledChannel("ch-a"), disabled, filtered)
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-a", "ch-off", "ch-p0"}}
	out, err := d.Dispatch(context.Background(), dispatchAlert(), tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ch-a", out[0].ChannelID)
	assert.Equal(t, []string{"ch-a"}, transport.sent)
}

func TestDispatchDedupSkipsDeliveredChannel(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-a"))
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	alert := dispatchAlert()
	tier := &model.EscalationTier{Order: 2, ChannelIDs: []string{"ch-a"}}

	out, err := d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, transport.sentCount("ch-a"))

	// Second pass over the same (alert, tier, channel) must not reach the
	// transport again.
	out, err = d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.ResultSkipped, out[0].Status)
	assert.Equal(t, 1, transport.sentCount("ch-a"))
}

func TestDispatchRetriesAfterFailure(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-a"))
	results := &fakeResultStore{}
	transport := &fakeTransport{fails: map[string]bool{"ch-a": true}}
	d := newTestDispatcher(channels, results, transport)

	alert := dispatchAlert()
	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-a"}}

	out, err := d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Success)

	// A failed delivery is not final: the next pass tries the transport again.
	transport.fails["ch-a"] = false
	out, err = d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, 2, transport.sentCount("ch-a"))
}

func TestDispatchRepeatsGetOwnDedupScope(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-a"))
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	alert := dispatchAlert()
	tier := &model.EscalationTier{Order: 2, ChannelIDs: []string{"ch-a"}}

	_, err := d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)
	out, err := d.Dispatch(context.Background(), alert, tier, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, 2, transport.sentCount("ch-a"))
}

func TestDispatchRateLimit(t *testing.T) {
	limited := enabledChannel("ch-a")
	limited.RateLimitPerHour = 2
	channels := newFakeChannelStore(limited)
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	alert := dispatchAlert()
	for i := 1; i <= 2; i++ {
		tier := &model.EscalationTier{Order: i, ChannelIDs: []string{"ch-a"}}
		out, err := d.Dispatch(context.Background(), alert, tier, 0)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, model.ResultAttempted, out[0].Status)
	}

	tier := &model.EscalationTier{Order: 3, ChannelIDs: []string{"ch-a"}}
	out, err := d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.ResultRateLimited, out[0].Status)
	assert.Equal(t, 2, transport.sentCount("ch-a"))

	// The rate-limited row is persisted for audit but does not itself count
	// toward the limit.
	count, err := results.CountAttemptedSince(context.Background(), "ch-a", testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDispatchRateLimitHoldsUnderConcurrentDispatch(t *testing.T) {
	limited := enabledChannel("ch-a")
	limited.RateLimitPerHour = 1
	channels := newFakeChannelStore(limited)
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	// Distinct alerts targeting the same channel in one cycle: no matter how
	// the dispatches interleave, exactly one may claim the single slot.
	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-a"}}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			alert := dispatchAlert()
			alert.ID = fmt.Sprintf("row-%d", i)
			alert.AlertID = fmt.Sprintf("cpu-high-%d", i)
			_, err := d.Dispatch(context.Background(), alert, tier, 0)
			assert.NoError(t, err)
		}(i)
	}
	close(start)
	wg.Wait()

	count, err := results.CountAttemptedSince(context.Background(), "ch-a", testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, transport.sentCount("ch-a"))
}

func TestDispatchPartialFailureIsolation(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-ok"), enabledChannel("ch-bad"))
	results := &fakeResultStore{}
	transport := &fakeTransport{fails: map[string]bool{"ch-bad": true}}
	d := newTestDispatcher(channels, results, transport)

	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-ok", "ch-bad"}}
	out, err := d.Dispatch(context.Background(), dispatchAlert(), tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	byChannel := map[string]model.NotificationResult{}
	for _, r := range out {
		byChannel[r.ChannelID] = r
	}
	assert.True(t, byChannel["ch-ok"].Success)
	assert.False(t, byChannel["ch-bad"].Success)
	assert.Equal(t, "bad gateway", byChannel["ch-bad"].ErrorMessage)
}

func TestDispatchTestModeSkipsTransport(t *testing.T) {
	testCh := enabledChannel("ch-test")
	testCh.TestMode = true
	channels := newFakeChannelStore(testCh)
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-test"}}
	out, err := d.Dispatch(context.Background(), dispatchAlert(), tier, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Empty(t, transport.sent)
	// The attempted row still lands in history.
	assert.Equal(t, model.ResultAttempted, out[0].Status)
}

func TestDispatchInsertFailureSurfaces(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-a"))
	results := &fakeResultStore{insertErr: fmt.Errorf("disk full")}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-a"}}
	_, err := d.Dispatch(context.Background(), dispatchAlert(), tier, 0)
	require.Error(t, err)
}

func TestDispatchResolutionSeparateScope(t *testing.T) {
	channels := newFakeChannelStore(enabledChannel("ch-a"))
	results := &fakeResultStore{}
	transport := &fakeTransport{}
	d := newTestDispatcher(channels, results, transport)

	alert := dispatchAlert()
	tier := &model.EscalationTier{Order: 1, ChannelIDs: []string{"ch-a"}}

	_, err := d.Dispatch(context.Background(), alert, tier, 0)
	require.NoError(t, err)

	// The escalation delivery must not swallow the resolution notice.
	out, err := d.DispatchResolution(context.Background(), alert, tier)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, 2, transport.sentCount("ch-a"))
}
