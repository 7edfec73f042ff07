package mqtt

import "fmt"

// maxPayloadSize caps a single document; snapshots of large telemetry
// maps stay well below it.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic. Wildcard topics are rejected.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case !validPublishTopic(topic):
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishRetained publishes a retained document at the configured QoS.
// Discovery configs, availability and state all use it.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// ClearRetained deletes the retained document on topic by publishing an
// empty payload, which removes a discovered entity from Home Assistant.
func (c *Client) ClearRetained(topic string) error {
	return c.Publish(topic, nil, byte(c.cfg.QoS), true)
}
