package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHealthPublisher records health publishes.
type fakeHealthPublisher struct {
	mu        sync.Mutex
	topics    []string
	messages  []HealthMessage
	retained  []bool
	connected bool
	err       error
}

func (p *fakeHealthPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	p.retained = append(p.retained, retained)
	return nil
}

func (p *fakeHealthPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakeHealthPublisher) snapshot() []HealthMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]HealthMessage(nil), p.messages...)
}

type fixedStats Stats

func (s fixedStats) Stats() Stats { return Stats(s) }

// fakeSink records stats written each interval.
type fakeSink struct {
	mu    sync.Mutex
	stats []Stats
}

func (s *fakeSink) WriteRelayStats(stats Stats, _ time.Duration) {
	s.mu.Lock()
	s.stats = append(s.stats, stats)
	s.mu.Unlock()
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats)
}

func runReporter(t *testing.T, h *HealthReporter, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("HealthReporter.Run did not return after cancellation")
	}
}

func TestHealthReporter_PublishesAndStops(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	sink := &fakeSink{}
	source := fixedStats{LinesRead: 4, Published: 3, Received: 2, BytesOut: 99, LastSequence: 2}

	h := NewHealthReporter(HealthReporterConfig{
		ClientID:  "board-01",
		Version:   "1.2.3",
		Topic:     "boards/board-01/status/health",
		Interval:  10 * time.Millisecond,
		Publisher: pub,
		Source:    source,
		Sinks:     []StatsSink{sink},
	})

	runReporter(t, h, func() bool { return len(pub.snapshot()) >= 2 && sink.count() >= 2 })

	msgs := pub.snapshot()
	first := msgs[0]
	assert.Equal(t, HealthHealthy, first.Status)
	assert.Equal(t, "board-01", first.ClientID)
	assert.Equal(t, "1.2.3", first.Version)
	assert.Equal(t, uint64(3), first.Published)
	require.NotNil(t, first.LastSequence)
	assert.Equal(t, uint64(2), *first.LastSequence)

	assert.Equal(t, HealthStopping, msgs[len(msgs)-1].Status)
	for i, topic := range pub.topics {
		assert.Equal(t, "boards/board-01/status/health", topic)
		assert.True(t, pub.retained[i])
	}
	assert.Equal(t, Stats(source), sink.stats[0])
}

func TestHealthReporter_DegradedWhenDisconnected(t *testing.T) {
	pub := &fakeHealthPublisher{connected: false}
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "status/health",
		Interval:  time.Hour,
		Publisher: pub,
		Source:    fixedStats{},
	})

	runReporter(t, h, func() bool { return len(pub.snapshot()) >= 1 })

	first := pub.snapshot()[0]
	assert.Equal(t, HealthDegraded, first.Status)
	assert.Equal(t, "MQTT disconnected", first.Reason)
	assert.Nil(t, first.LastSequence, "no sequence before the first publish")
}

func TestHealthReporter_DegradedWhenCheckFails(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	var calls []string
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "status/health",
		Interval:  time.Hour,
		Publisher: pub,
		Checks: []HealthCheck{
			{Name: "history", Check: func(ctx context.Context) error {
				calls = append(calls, "history")
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline, "checks run with a timeout")
				return nil
			}},
			{Name: "influxdb", Check: func(context.Context) error {
				calls = append(calls, "influxdb")
				return errors.New("ping refused")
			}},
		},
	})

	runReporter(t, h, func() bool { return len(pub.snapshot()) >= 1 })

	first := pub.snapshot()[0]
	assert.Equal(t, HealthDegraded, first.Status)
	assert.Equal(t, "influxdb: ping refused", first.Reason)
	assert.Equal(t, []string{"history", "influxdb"}, calls[:2])
}

func TestHealthReporter_PassingChecksStayHealthy(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "status/health",
		Interval:  time.Hour,
		Publisher: pub,
		Checks: []HealthCheck{
			{Name: "history", Check: func(context.Context) error { return nil }},
		},
	})

	runReporter(t, h, func() bool { return len(pub.snapshot()) >= 1 })

	assert.Equal(t, HealthHealthy, pub.snapshot()[0].Status)
}

func TestHealthReporter_EchoModeFeedsSinksOnly(t *testing.T) {
	sink := &fakeSink{}
	h := NewHealthReporter(HealthReporterConfig{
		Interval: 10 * time.Millisecond,
		Source:   fixedStats{Published: 1},
		Sinks:    []StatsSink{sink},
	})

	runReporter(t, h, func() bool { return sink.count() >= 1 })
}

func TestHealthReporter_PublishErrorIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	pub := &fakeHealthPublisher{connected: true, err: errors.New("offline")}
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "status/health",
		Interval:  time.Hour,
		Publisher: pub,
		Logger:    logger,
	})

	runReporter(t, h, func() bool { return logger.count("warn") >= 1 })
}

func TestHealthReporter_ZeroIntervalDisabled(t *testing.T) {
	pub := &fakeHealthPublisher{connected: true}
	h := NewHealthReporter(HealthReporterConfig{Topic: "status/health", Publisher: pub})

	err := h.Run(context.Background())

	assert.NoError(t, err)
	assert.Empty(t, pub.snapshot())
}
