package bridge

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/todobridge/internal/runtime/metadata"
	"github.com/drblury/todobridge/internal/runtime/telemetry"
)

// swallowErrors is the outermost middleware. Handler errors and recovered
// panics go to the error hooks and the message is acked, so a bad command is
// never redelivered and never stops the subscription.
func (b *Bridge) swallowErrors(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		started := b.now()
		out, err := h(msg)
		if err != nil {
			b.hooks.onError(CommandInfo{
				Command:       msg.Metadata.Get(metadata.KeyCommand),
				Topic:         msg.Metadata.Get(metadata.KeyTopic),
				CorrelationID: msg.Metadata.Get(metadata.KeyCorrelationID),
				MessageUUID:   msg.UUID,
				Context:       msg.Context(),
				StartedAt:     started,
				Duration:      b.now().Sub(started),
			}, err)
		}
		return out, nil
	}
}

// tracer wraps handling in a consumer span named after the topic.
func (b *Bridge) tracer(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := msg.Metadata.Get(metadata.KeyTopic)
		ctx, span := telemetry.Tracer().Start(
			msg.Context(),
			"bridge.command",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.destination.name", topic),
				attribute.String("messaging.message.id", msg.UUID),
			),
		)
		defer span.End()
		msg.SetContext(ctx)

		out, err := h(msg)
		if cmd := msg.Metadata.Get(metadata.KeyCommand); cmd != "" {
			span.SetAttributes(attribute.String("todobridge.command", cmd))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}
