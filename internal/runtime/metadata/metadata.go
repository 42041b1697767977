// Package metadata holds the header keys that travel next to bridge payloads.
package metadata

// Reserved header keys. Transports without native headers (MQTT 3.1.1)
// reconstruct KeyTopic from the delivery itself.
const (
	// KeyTopic carries the concrete topic a message was published on, so a
	// subscriber on a wildcard filter can route it.
	KeyTopic = "topic"

	// KeyCorrelationID mirrors the correlationId recovered from a command.
	KeyCorrelationID = "correlation_id"

	// KeyCommand names the bridge command a response answers.
	KeyCommand = "command"

	// KeyEventAction is set on change events published under <prefix>/todo/.
	KeyEventAction = "event_action"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// Topic returns the KeyTopic entry.
func (m Metadata) Topic() string {
	return m[KeyTopic]
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
