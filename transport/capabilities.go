package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsWildcards indicates the broker matches wildcard filters natively.
	// When false the transport emulates matching in process.
	SupportsWildcards bool `json:"supportsWildcards"`

	// SupportsOrdering indicates the transport guarantees per-topic ordering.
	SupportsOrdering bool `json:"supportsOrdering"`

	// SupportsHeaders indicates message metadata travels with the payload.
	// Without headers only the payload and the concrete topic survive.
	SupportsHeaders bool `json:"supportsHeaders"`

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool `json:"supportsAck"`

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool `json:"supportsNack"`

	// SupportsReconnect indicates the client re-establishes the connection and
	// its subscriptions on its own.
	SupportsReconnect bool `json:"supportsReconnect"`

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`

	// Name is the human-readable name of the transport.
	Name string `json:"name"`

	// Version is the transport/driver version.
	Version string `json:"version,omitempty"`
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:              "channel",
		SupportsWildcards: false,
		SupportsOrdering:  true,
		SupportsHeaders:   true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsReconnect: false,
	}

	// MQTTCapabilities for MQTT 3.1.1 brokers.
	MQTTCapabilities = Capabilities{
		Name:              "mqtt",
		SupportsWildcards: true,
		SupportsOrdering:  false,
		SupportsHeaders:   false,
		SupportsAck:       true,
		SupportsNack:      false,
		SupportsReconnect: true,
		MaxMessageSize:    268435455, // protocol limit
	}

	// NATSCapabilities for NATS Core.
	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsWildcards: true,
		SupportsOrdering:  false,
		SupportsHeaders:   true,
		SupportsAck:       false,
		SupportsNack:      false,
		SupportsReconnect: true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ topic exchanges.
	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsWildcards: true,
		SupportsOrdering:  true,
		SupportsHeaders:   true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsReconnect: true,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
