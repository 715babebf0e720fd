package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// HealthStatus is the overall relay state reported in health messages.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published to the health topic each interval.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	ClientID      string       `json:"client_id"`
	Version       string       `json:"version,omitempty"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	LinesRead     uint64       `json:"lines_read"`
	Published     uint64       `json:"published"`
	Received      uint64       `json:"received"`
	BytesOut      uint64       `json:"bytes_out"`
	LastSequence  *uint64      `json:"last_sequence,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// HealthPublisher publishes health messages. The MQTT client implements it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsSource provides relay counters.
type StatsSource interface {
	Stats() Stats
}

// StatsSink receives a stats snapshot each interval (for example InfluxDB).
type StatsSink interface {
	WriteRelayStats(stats Stats, uptime time.Duration)
}

// HealthCheck tests one dependency such as the history database.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	ClientID string
	Version  string

	// Topic receives health messages. Empty skips publishing but sinks
	// still receive stats.
	Topic string

	// Interval between reports. Zero or negative disables reporting.
	Interval time.Duration

	// Publisher may be nil in echo mode.
	Publisher HealthPublisher

	Source StatsSource
	Sinks  []StatsSink

	// Checks run before every report, in order. The first failure marks
	// the relay degraded.
	Checks []HealthCheck

	Logger Logger
}

// HealthReporter publishes relay health at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	logger    Logger
}

// NewHealthReporter creates a reporter. Call Run to start it.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Run reports immediately and then every interval until ctx is done, then
// publishes a final stopping status. It always returns nil; publish
// failures are logged.
func (h *HealthReporter) Run(ctx context.Context) error {
	if h.cfg.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.report(ctx)
	for {
		select {
		case <-ctx.Done():
			if err := h.publish(h.message(HealthStopping, "")); err != nil {
				h.logger.Warn("failed to publish stopping health", "error", err)
			}
			return nil
		case <-ticker.C:
			h.report(ctx)
		}
	}
}

// report publishes the current status and feeds the sinks.
func (h *HealthReporter) report(ctx context.Context) {
	status, reason := h.determineStatus(ctx)
	msg := h.message(status, reason)

	if err := h.publish(msg); err != nil {
		h.logger.Warn("failed to publish health", "error", err)
	}

	stats := h.stats()
	uptime := time.Since(h.startTime)
	for _, sink := range h.cfg.Sinks {
		sink.WriteRelayStats(stats, uptime)
	}
}

// determineStatus evaluates the current relay status.
func (h *HealthReporter) determineStatus(ctx context.Context) (HealthStatus, string) {
	if h.cfg.Publisher != nil && !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	for _, c := range h.cfg.Checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := c.Check(checkCtx)
		cancel()
		if err != nil {
			h.logger.Warn("health check failed", "check", c.Name, "error", err)
			return HealthDegraded, c.Name + ": " + err.Error()
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) stats() Stats {
	if h.cfg.Source == nil {
		return Stats{}
	}
	return h.cfg.Source.Stats()
}

// message builds a health message from the current stats.
func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	stats := h.stats()
	msg := HealthMessage{
		Status:        status,
		ClientID:      h.cfg.ClientID,
		Version:       h.cfg.Version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		LinesRead:     stats.LinesRead,
		Published:     stats.Published,
		Received:      stats.Received,
		BytesOut:      stats.BytesOut,
		Reason:        reason,
	}
	if stats.Published > 0 {
		last := stats.LastSequence
		msg.LastSequence = &last
	}
	return msg
}

// publish sends msg retained at QoS 1. A missing publisher or topic is a no-op.
func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Publisher == nil || h.cfg.Topic == "" {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling health: %w", err)
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}
