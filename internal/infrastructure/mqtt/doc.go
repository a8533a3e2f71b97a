// Package mqtt provides the MQTT session used to talk to the ThingsBoard
// platform.
//
// This package manages:
//   - One session at a time, opened with a caller-chosen identity
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, scoped to the session
//   - Connection-lost notification
//   - ThingsBoard device API topic names
//
// # Reconnection
//
// The client never reconnects by itself. The agent alternates between an
// anonymous provisioning login and the device's own credentials, and it
// throttles attempts; both decisions belong to the session state machine,
// which calls Connect once per attempt.
//
// # Security Considerations
//
//   - Use TLS (thingsboard.tls=true) on untrusted networks
//   - Access tokens travel as the MQTT username; never log Identity values
//
// # Usage
//
//	client := mqtt.New(mqtt.OptionsFromConfig(cfg.ThingsBoard))
//	if err := client.Connect(mqtt.Identity{Username: token}); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err := client.Subscribe(mqtt.Topics{}.AllRPCRequests(), 1,
//	    func(topic string, payload []byte) error {
//	        inbound <- payload
//	        return nil
//	    })
//
//	client.PublishDefault(mqtt.TopicTelemetry, []byte(`{"temperature":24.5}`))
package mqtt
