package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (128KB).
// AWS IoT Core rejects larger payloads; a serial line never comes close.
const maxPayloadSize = 128 << 10

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload (typically JSON, max 128KB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Offline behaviour:
//   - If the connection is up, Publish waits for the broker acknowledgment
//     (QoS 1/2) or the network write (QoS 0) up to the operation timeout.
//   - If paho is reconnecting and offline_queue is enabled, a QoS 1/2
//     message is stored by paho for delivery after reconnection and Publish
//     returns nil without waiting.
//   - Otherwise ErrNotConnected is returned. This includes QoS 0 while
//     reconnecting: paho completes such a publish without storing it.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		if c.cfg.OfflineQueue && qos > 0 && c.client != nil && c.client.IsConnected() {
			return c.publishQueued(topic, payload, qos, retained)
		}
		return ErrNotConnected
	}

	timeout := c.cfg.GetOperationTimeout()
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// publishQueued hands a message to paho while it is reconnecting.
// Only errors that paho reports immediately are returned.
func (c *Client) publishQueued(topic string, payload []byte, qos byte, retained bool) error {
	token := c.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
	default:
	}

	c.queued.Add(1)
	return nil
}
