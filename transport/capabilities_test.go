package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportsReliableDelivery(t *testing.T) {
	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.True(t, RabbitMQCapabilities.SupportsReliableDelivery())
	assert.False(t, MQTTCapabilities.SupportsReliableDelivery())
	assert.False(t, NATSCapabilities.SupportsReliableDelivery())
}

func TestPredefinedCapabilities(t *testing.T) {
	tests := []struct {
		caps      Capabilities
		name      string
		wildcards bool
		headers   bool
	}{
		{ChannelCapabilities, "channel", false, true},
		{MQTTCapabilities, "mqtt", true, false},
		{NATSCapabilities, "nats", true, true},
		{RabbitMQCapabilities, "rabbitmq", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.caps.Name)
			assert.Equal(t, tt.wildcards, tt.caps.SupportsWildcards)
			assert.Equal(t, tt.headers, tt.caps.SupportsHeaders)
		})
	}
}
