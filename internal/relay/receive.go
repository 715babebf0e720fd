package relay

// OnMessage observes an inbound message on the subscribed topic, including
// the relay's own publishes echoed back by the broker.
//
// It runs on the transport's delivery goroutine and touches only the
// logger and an atomic counter. A panic from the logger is swallowed.
func (r *Relay) OnMessage(topic string, payload []byte) {
	defer func() {
		_ = recover() // nothing may escape into the transport
	}()

	r.received.Add(1)
	r.logger.Info("message received", "topic", topic, "payload", string(payload))
}
