package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill converts Watermill metadata into a Metadata copy.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill converts Metadata into a Watermill map.
func ToWatermill(md Metadata) message.Metadata {
	wm := make(message.Metadata, len(md))
	for k, v := range md {
		wm[k] = v
	}
	return wm
}

// StampTopic records topic on every message that does not carry one yet.
func StampTopic(topic string, msgs ...*message.Message) {
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Metadata == nil {
			msg.Metadata = message.Metadata{}
		}
		if msg.Metadata.Get(KeyTopic) == "" {
			msg.Metadata.Set(KeyTopic, topic)
		}
	}
}
