// Package bridge keeps roller-shutter positions consistent between a Tydom
// hub and an MQTT broker.
//
// On Start the bridge connects the hub, registers for device-data pushes,
// reads the whole fleet once and publishes every cover position. The bus
// command and position-set topics are subscribed only after that snapshot
// has been published, and discovery documents are sent last.
//
// From then on hub pushes become position publications and bus requests
// become hub writes:
//
//	OPEN          -> position 100
//	CLOSE         -> position 0
//	position/set  -> that position
//	anything else -> ignored
//
// Each direction has its own bounded queue with a single consumer. Hub
// writes are issued without waiting for the hub, so one slow write never
// delays the next message.
package bridge
