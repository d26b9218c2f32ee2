package mqtt

import "errors"

// Sentinel errors for MQTT operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, mqtt.ErrNotConnected) {
//	    // Broker unreachable; events are best-effort, keep going
//	}
var (
	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected indicates an operation was attempted while disconnected.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrPublishFailed indicates a publish was not acknowledged.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic indicates an empty or malformed topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS indicates a QoS level outside 0-2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")
)
