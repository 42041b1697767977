package transport

import "strings"

const (
	// TopicSeparator splits topic levels.
	TopicSeparator = "/"
	// SingleLevelWildcard matches exactly one level.
	SingleLevelWildcard = "+"
	// MultiLevelWildcard matches the remaining levels, including none.
	MultiLevelWildcard = "#"
)

// HasWildcard reports whether filter contains a wildcard level.
func HasWildcard(filter string) bool {
	for _, level := range strings.Split(filter, TopicSeparator) {
		if level == SingleLevelWildcard || level == MultiLevelWildcard {
			return true
		}
	}
	return false
}

// MatchTopic reports whether topic matches the MQTT-style filter.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fl := strings.Split(filter, TopicSeparator)
	tl := strings.Split(topic, TopicSeparator)

	for i, level := range fl {
		if level == MultiLevelWildcard {
			// '#' is only valid as the last level and also matches the parent.
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if level != SingleLevelWildcard && level != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
