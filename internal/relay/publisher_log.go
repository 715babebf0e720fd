package relay

// LogPublisher is a Publisher that only logs. It backs echo mode, where the
// bridge runs without a broker and every line is written to the log.
type LogPublisher struct {
	Logger Logger
}

// Publish logs the payload and never fails.
func (p LogPublisher) Publish(topic string, payload []byte) error {
	if p.Logger != nil {
		p.Logger.Info("echo", "topic", topic, "payload", string(payload))
	}
	return nil
}
