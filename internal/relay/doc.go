// Package relay drains a line reader into a publish/subscribe topic.
//
// Each line becomes an Envelope {message, sequence} encoded as JSON and
// published exactly once. Sequence numbers start at 0 for every run and
// increase by one per successful publish; they are not persisted.
//
// The relay also provides OnMessage, the observer registered for inbound
// messages on the same topic. It runs on the transport's delivery
// goroutine and only logs and counts.
//
// Optional collaborators:
//   - History records each published envelope (SQLiteHistory)
//   - HealthReporter publishes periodic stats and forwards them to a
//     StatsSink such as InfluxDB
//
// Limitation: ReadLine has no timeout. A silent device blocks the loop
// until the context is cancelled, at which point a reader that implements
// io.Closer is closed to release it.
package relay
