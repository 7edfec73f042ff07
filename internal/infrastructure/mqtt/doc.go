// Package mqtt provides MQTT client connectivity for the Creality bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with restoration after reconnect
//   - The bridge status document and its Last Will and Testament (LWT)
//   - Reconnect hooks so outputs can re-send retained topics
//
// # Architecture
//
// The bridge publishes printer telemetry and Home Assistant discovery
// documents to the broker. Home Assistant (or any other subscriber)
// consumes them without talking to the printers directly.
//
//	Printers → Bridge → MQTT Broker → Home Assistant
//
// # Topic Layout
//
//	creality/system/status                        bridge online/offline (LWT)
//	creality/{entry}/availability                 printer online/offline
//	creality/{entry}/state                        full telemetry snapshot
//	creality/{entry}/sensor/{object}/state        single sensor value
//	{prefix}/sensor/creality_{entry}/{object}/config  discovery document
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Supply credentials through CREALITY_MQTT_USERNAME/CREALITY_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithVersion(version),
//	    mqtt.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.OnReconnect(bridge.RepublishAll)
//
//	err = client.PublishRetained(mqtt.Topics{}.EntryAvailability(id), []byte("online"))
package mqtt
