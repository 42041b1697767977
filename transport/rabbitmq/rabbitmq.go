// Package rabbitmq provides a RabbitMQ/AMQP transport for the command bridge.
//
// Every topic is published to a single topic exchange; the routing key is the
// topic with '/' replaced by '.' and '+' by '*'. Each subscriber gets an
// auto-deleted queue named after the filter and the client id.
package rabbitmq

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/todobridge/internal/runtime/metadata"
	"github.com/drblury/todobridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

const (
	// ExchangeName is the topic exchange shared by every topic.
	ExchangeName = "todobridge"
	// ExchangeType routes by pattern.
	ExchangeType = "topic"
	// DefaultPollInterval is how often the connection state is checked.
	DefaultPollInterval = time.Second
)

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	Register()
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
	transport.RegisterWithCapabilities("amqp", Build, transport.RabbitMQCapabilities)
}

// Build creates a new RabbitMQ transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	amqpConfig := NewConfig(url, cfg.GetClientID())

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	ps := newPubSub(publisher, subscriber, conn, DefaultPollInterval)
	return transport.Transport{
		Publisher:  ps,
		Subscriber: ps,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// NewConfig returns a non-durable pub/sub config bound to the shared topic
// exchange. clientID keeps queue names unique per process.
func NewConfig(url, clientID string) amqp.Config {
	c := amqp.NewNonDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix(clientID))
	c.Exchange.GenerateName = func(topic string) string { return ExchangeName }
	c.Exchange.Type = ExchangeType
	c.QueueBind.GenerateRoutingKey = RoutingKeyFromTopic
	c.Publish.GenerateRoutingKey = RoutingKeyFromTopic
	return c
}

// RoutingKeyFromTopic converts an MQTT-style topic or filter to an AMQP
// routing key or binding pattern.
func RoutingKeyFromTopic(topic string) string {
	levels := strings.Split(topic, transport.TopicSeparator)
	for i, level := range levels {
		if level == transport.SingleLevelWildcard {
			levels[i] = "*"
		}
	}
	return strings.Join(levels, ".")
}

type connectionState interface {
	IsConnected() bool
	Close() error
}

// PubSub stamps the topic into outgoing metadata and reports the state of the
// shared AMQP connection.
type PubSub struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	conn       connectionState
	poll       time.Duration

	closeOnce sync.Once
	closing   chan struct{}
}

func newPubSub(pub message.Publisher, sub message.Subscriber, conn connectionState, poll time.Duration) *PubSub {
	return &PubSub{
		publisher:  pub,
		subscriber: sub,
		conn:       conn,
		poll:       poll,
		closing:    make(chan struct{}),
	}
}

func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	metadata.StampTopic(topic, messages...)
	return p.publisher.Publish(topic, messages...)
}

func (p *PubSub) Subscribe(ctx context.Context, filter string) (<-chan *message.Message, error) {
	return p.subscriber.Subscribe(ctx, filter)
}

// NotifyConnection implements transport.ConnectionObserver by polling the
// connection wrapper, which reconnects on its own.
func (p *PubSub) NotifyConnection(fn func(connected bool)) {
	go func() {
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()

		last := false
		for {
			if now := p.conn.IsConnected(); now != last {
				last = now
				fn(now)
			}
			select {
			case <-p.closing:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (p *PubSub) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closing)
		if e := p.publisher.Close(); e != nil {
			err = e
		}
		if e := p.subscriber.Close(); e != nil && err == nil {
			err = e
		}
		if e := p.conn.Close(); e != nil && err == nil {
			err = e
		}
	})
	return err
}
