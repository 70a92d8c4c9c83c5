package mqtt

import "context"

// Client abstracts the broker connection so agents and tests can swap in
// fakes without touching Paho types.
type Client interface {
	// Connect dials the broker, honouring the context for cancellation.
	Connect(ctx context.Context) error

	// Disconnect drops the broker connection after a short grace period.
	Disconnect()

	// Subscribe registers a handler for a topic at the given QoS.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish sends a payload to a topic at the given QoS.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected reports the current connection state.
	IsConnected() bool
}

// MessageHandler receives inbound messages for a subscription.
type MessageHandler func(Message)

// Message is one inbound MQTT message.
type Message interface {
	// Topic is the topic the message arrived on.
	Topic() string

	// Payload is the raw message body.
	Payload() []byte

	// Ack acknowledges receipt for QoS levels above 0.
	Ack()
}
