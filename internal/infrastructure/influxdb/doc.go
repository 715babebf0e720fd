// Package influxdb writes relay telemetry to InfluxDB.
//
// It wraps influxdb-client-go v2 with connection checks and a non-blocking,
// batched write API. The bridge writes one serial_relay point per health
// interval; nothing on the relay path waits for InfluxDB.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRelayStats(influxdb.RelayTags{ClientID: id, Topic: topic}, stats)
//
// Write errors arrive asynchronously through SetOnError.
package influxdb
