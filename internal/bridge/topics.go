package bridge

import (
	"strings"

	"github.com/drblury/todobridge/transport"
)

// DefaultPrefix is used when the configured topic pattern yields no prefix.
const DefaultPrefix = "blazor-net-app"

const (
	commandSegment  = "command"
	responseSegment = "response"
	todoSegment     = "todo"
)

// DerivePrefix returns the first level of pattern with surrounding whitespace
// and wildcard markers removed. ok is false when nothing is left and
// DefaultPrefix was substituted.
func DerivePrefix(pattern string) (prefix string, ok bool) {
	first, _, _ := strings.Cut(strings.TrimSpace(pattern), transport.TopicSeparator)
	first = strings.TrimSpace(first)
	first = strings.TrimRight(first, transport.MultiLevelWildcard+transport.SingleLevelWildcard)
	first = strings.TrimSpace(first)
	if first == "" {
		return DefaultPrefix, false
	}
	return first, true
}

// SubscriptionFilter is the single filter the bridge listens on.
func SubscriptionFilter(prefix string) string {
	return prefix + transport.TopicSeparator + transport.MultiLevelWildcard
}

// CommandTopic is where clients publish the named command.
func CommandTopic(prefix, name string) string {
	return join(prefix, commandSegment, name)
}

// ResponseTopic returns the correlation-scoped response topic, or the shared
// one when correlationID is empty.
func ResponseTopic(prefix, correlationID string) string {
	if correlationID == "" {
		return join(prefix, responseSegment)
	}
	return join(prefix, responseSegment, correlationID)
}

// EventTopic is where change events for action are published.
func EventTopic(prefix, action string) string {
	return join(prefix, todoSegment, action)
}

// commandName extracts the lower-cased command from a topic under
// <prefix>/command/. ok is false for every other topic. An empty last level
// yields an empty name, which is answered as an unknown command.
func commandName(prefix, topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, join(prefix, commandSegment)+transport.TopicSeparator)
	if !found {
		return "", false
	}
	if i := strings.LastIndex(rest, transport.TopicSeparator); i >= 0 {
		rest = rest[i+1:]
	}
	return strings.ToLower(rest), true
}

func join(levels ...string) string {
	return strings.Join(levels, transport.TopicSeparator)
}
