// Package transport defines the broker abstraction used by the command bridge.
// Each transport implementation (mqtt, nats, rabbitmq, channel) lives in its own
// sub-package and registers itself with the transport registry.
//
// Topics follow MQTT conventions: '/' separates levels, '+' matches one level
// and a trailing '#' matches the remainder. Subscribers may pass wildcard
// filters; every delivered message carries the concrete topic it was published
// to in its "topic" metadata key.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a transport from config.
// Each transport package provides a Builder that is registered under its name.
// Builders must not block waiting for the broker: connection establishment is
// reported through ConnectionObserver.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetBridgeTransport returns the transport name.
	GetBridgeTransport() string

	// MQTT
	GetBroker() string
	GetBrokerPort() int
	GetClientID() string
	GetBrokerUsername() string
	GetBrokerPassword() string

	// NATS
	GetNATSURL() string

	// RabbitMQ
	GetRabbitMQURL() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// ConnectionObserver is implemented by publishers or subscribers that hold a
// broker connection. fn is called with true on every (re)connect and false on
// every loss; if the connection is already up when fn is registered it is
// called immediately. fn may run on any goroutine.
type ConnectionObserver interface {
	NotifyConnection(fn func(connected bool))
}
