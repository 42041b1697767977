// Package nats provides a NATS Core transport for the command bridge.
//
// Topics are mapped to subjects by replacing '/' with '.', '+' with '*' and
// '#' with '>'. Messages are encoded with watermill-nats' header marshaler, so
// metadata survives the round trip.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/todobridge/internal/runtime/metadata"
	"github.com/drblury/todobridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// DefaultReconnectWait is the delay between reconnect attempts.
const DefaultReconnectWait = 2 * time.Second

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("nats: pubsub is closed")

// ConnectFactory allows overriding the connection creation for testing.
var ConnectFactory = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	ps, err := New(Config{
		URL:      cfg.GetNATSURL(),
		Name:     cfg.GetClientID(),
		Username: cfg.GetBrokerUsername(),
		Password: cfg.GetBrokerPassword(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  ps,
		Subscriber: ps,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// Config holds NATS-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string
	// Name is reported to the server as the client name.
	Name     string
	Username string
	Password string

	ReconnectWait time.Duration
	// OutputBuffer is the channel buffer of each subscriber.
	OutputBuffer int
}

func (c Config) withDefaults() Config {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	return c
}

// SubjectFromTopic converts an MQTT-style topic or filter to a NATS subject.
func SubjectFromTopic(topic string) string {
	levels := strings.Split(topic, transport.TopicSeparator)
	for i, level := range levels {
		switch level {
		case transport.SingleLevelWildcard:
			levels[i] = "*"
		case transport.MultiLevelWildcard:
			levels[i] = ">"
		}
	}
	return strings.Join(levels, ".")
}

// TopicFromSubject reverses SubjectFromTopic for concrete subjects.
func TopicFromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", transport.TopicSeparator)
}

// PubSub implements both Publisher and Subscriber on one NATS connection.
type PubSub struct {
	conn      *nats.Conn
	logger    watermill.LoggerAdapter
	marshaler *wmnats.NATSMarshaler
	subs      *transport.SubscriptionSet

	mu        sync.Mutex
	natsSubs  map[string]*nats.Subscription
	observers []func(bool)
	connected bool
	closed    bool
}

// New connects to NATS. An unreachable server is not an error: the client
// keeps retrying in the background and reports through NotifyConnection.
func New(cfg Config, logger watermill.LoggerAdapter) (*PubSub, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats: URL is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg = cfg.withDefaults()

	p := &PubSub{
		logger:    logger.With(watermill.LogFields{"nats_url": cfg.URL}),
		marshaler: &wmnats.NATSMarshaler{},
		subs:      transport.NewSubscriptionSet(cfg.OutputBuffer),
		natsSubs:  make(map[string]*nats.Subscription),
	}
	p.subs.OnEmpty = p.unsubscribe

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ConnectHandler(func(*nats.Conn) { p.setConnected(true) }),
		nats.ReconnectHandler(func(*nats.Conn) { p.setConnected(true) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Error("Disconnected from NATS", err, nil)
			}
			p.setConnected(false)
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := ConnectFactory(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p.conn = conn
	if conn.IsConnected() {
		p.setConnected(true)
	}

	return p, nil
}

func (p *PubSub) setConnected(connected bool) {
	p.mu.Lock()
	if p.connected == connected {
		p.mu.Unlock()
		return
	}
	p.connected = connected
	observers := append([]func(bool){}, p.observers...)
	p.mu.Unlock()

	if connected {
		p.logger.Info("Connected to NATS", nil)
	}
	for _, fn := range observers {
		fn(connected)
	}
}

// NotifyConnection implements transport.ConnectionObserver.
func (p *PubSub) NotifyConnection(fn func(connected bool)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	connected := p.connected
	p.mu.Unlock()

	if connected {
		fn(true)
	}
}

// Publish sends messages to the subject derived from topic.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	if p.isClosed() {
		return ErrClosed
	}
	subject := SubjectFromTopic(topic)
	for _, msg := range messages {
		metadata.StampTopic(topic, msg)
		natsMsg, err := p.marshaler.Marshal(subject, msg)
		if err != nil {
			return fmt.Errorf("nats: marshal: %w", err)
		}
		if err := p.conn.PublishMsg(natsMsg); err != nil {
			return fmt.Errorf("nats: publish to %s: %w", subject, err)
		}
	}
	return nil
}

// Subscribe subscribes to the subject derived from filter.
func (p *PubSub) Subscribe(ctx context.Context, filter string) (<-chan *message.Message, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	out, first, ok := p.subs.Add(ctx, filter)
	if !ok {
		return nil, ErrClosed
	}
	if !first {
		return out, nil
	}

	sub, err := p.conn.Subscribe(SubjectFromTopic(filter), p.handler(filter))
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", filter, err)
	}
	p.mu.Lock()
	p.natsSubs[filter] = sub
	p.mu.Unlock()
	return out, nil
}

func (p *PubSub) handler(filter string) nats.MsgHandler {
	return func(natsMsg *nats.Msg) {
		msg, err := p.marshaler.Unmarshal(natsMsg)
		if err != nil {
			p.logger.Error("Cannot unmarshal NATS message", err, watermill.LogFields{"subject": natsMsg.Subject})
			return
		}
		topic := msg.Metadata.Get(metadata.KeyTopic)
		if topic == "" {
			topic = TopicFromSubject(natsMsg.Subject)
		}
		p.subs.Deliver(filter, topic, msg)
	}
}

func (p *PubSub) unsubscribe(filter string) {
	p.mu.Lock()
	sub := p.natsSubs[filter]
	delete(p.natsSubs, filter)
	p.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Error("Failed to unsubscribe", err, watermill.LogFields{"filter": filter})
		}
	}
}

func (p *PubSub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close drains subscriptions and closes the connection.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.subs.Close()
	p.conn.Close()
	return nil
}
