// Package mqtt provides MQTT client connectivity for the serial bridge.
//
// This package manages:
//   - Connection to the broker (AWS IoT Core or any MQTT 3.1.1 broker)
//     with auto-reconnect
//   - Mutual TLS from root CA, certificate and private key files
//   - Message publishing with QoS guarantees and optional offline queueing
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// Reconnection and backoff are delegated entirely to paho; this package
// only tracks state, restores subscriptions and reports status.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("board/serial", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("board/serial", []byte(`{"message":"hi","sequence":0}`), 1, false)
package mqtt
