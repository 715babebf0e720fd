package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// relayMeasurement is the measurement holding relay counters.
const relayMeasurement = "serial_relay"

// RelayTags identify the bridge instance a point belongs to.
type RelayTags struct {
	ClientID string
	Topic    string
	Device   string
}

// RelayStats are cumulative relay counters since process start.
type RelayStats struct {
	LinesRead     uint64
	Published     uint64
	Received      uint64
	BytesOut      uint64
	UptimeSeconds int64
}

// WriteRelayStats writes one serial_relay point stamped with the current
// time. Non-blocking; dropped once the client is closed.
func (c *Client) WriteRelayStats(tags RelayTags, stats RelayStats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(relayMeasurement, tags.toMap(), map[string]any{
		"lines_read":     stats.LinesRead,
		"published":      stats.Published,
		"received":       stats.Received,
		"bytes_out":      stats.BytesOut,
		"uptime_seconds": stats.UptimeSeconds,
	}, time.Now()))
}

// toMap drops empty tags; InfluxDB rejects empty tag values.
func (t RelayTags) toMap() map[string]string {
	tags := make(map[string]string, 3)
	if t.ClientID != "" {
		tags["client_id"] = t.ClientID
	}
	if t.Topic != "" {
		tags["topic"] = t.Topic
	}
	if t.Device != "" {
		tags["device"] = t.Device
	}
	return tags
}
