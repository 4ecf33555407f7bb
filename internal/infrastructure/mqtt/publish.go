package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outgoing payloads at 1MB. Cover payloads are a few
// bytes; only discovery documents come anywhere near it.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement
// when qos > 0.
//
// Cover positions go out unretained, since they are rebuilt from the hub at
// startup. Discovery documents and availability are retained.
//
//	err := client.Publish("tydom/cover/kitchen/position", []byte("42"), 0, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %w: %d bytes exceeds %d", ErrPublishFailed, ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return c.await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}
