// Package mqtt provides an MQTT 3.1.1 transport for the command bridge, built
// on the Eclipse Paho client.
//
// MQTT carries no message headers: only the payload and the concrete topic
// survive a round trip. Delivery uses QoS 1 without the retain flag.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/drblury/todobridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "mqtt"

const (
	// DefaultPort is the plain-TCP MQTT port.
	DefaultPort = 1883
	// DefaultQoS is at-least-once delivery.
	DefaultQoS byte = 1
	// DefaultOperationTimeout bounds publish and subscribe round trips.
	DefaultOperationTimeout = 10 * time.Second
	// DefaultConnectRetryInterval is the delay between connection attempts.
	DefaultConnectRetryInterval = 5 * time.Second
	// DefaultKeepAlive is the MQTT keep-alive period.
	DefaultKeepAlive = 30 * time.Second
)

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("mqtt: pubsub is closed")

// ClientFactory allows overriding the Paho client creation for testing.
var ClientFactory = func(opts *paho.ClientOptions) paho.Client {
	return paho.NewClient(opts)
}

func init() {
	Register()
}

// Register registers the MQTT transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.MQTTCapabilities)
}

// Build creates a new MQTT transport. The connection is established in the
// background; Build never waits for the broker.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	ps, err := New(Config{
		Broker:   cfg.GetBroker(),
		Port:     cfg.GetBrokerPort(),
		ClientID: cfg.GetClientID(),
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
	return transport.MQTTCapabilities
}

// Config holds MQTT-specific configuration.
type Config struct {
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string

	QoS                  byte
	OperationTimeout     time.Duration
	ConnectRetryInterval time.Duration
	KeepAlive            time.Duration
	// OutputBuffer is the channel buffer of each subscriber.
	OutputBuffer int
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.QoS == 0 {
		c.QoS = DefaultQoS
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = DefaultConnectRetryInterval
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	return c
}

// BrokerURL returns the tcp:// URL of the configured broker.
func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}

// PubSub implements both Publisher and Subscriber on one Paho client.
type PubSub struct {
	config Config
	client paho.Client
	logger watermill.LoggerAdapter
	subs   *transport.SubscriptionSet

	mu        sync.Mutex
	observers []func(bool)
	connected bool
	closed    bool
}

// New creates the client and starts connecting in the background.
func New(cfg Config, logger watermill.LoggerAdapter) (*PubSub, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg = cfg.withDefaults()

	p := &PubSub{
		config: cfg,
		logger: logger.With(watermill.LogFields{"broker": cfg.BrokerURL(), "client_id": cfg.ClientID}),
		subs:   transport.NewSubscriptionSet(cfg.OutputBuffer),
	}
	p.subs.OnEmpty = p.unsubscribe

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ConnectRetryInterval).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			p.logger.Debug("Reconnecting to MQTT broker", nil)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p.client = ClientFactory(opts)
	p.client.Connect()

	return p, nil
}

func (p *PubSub) onConnect(c paho.Client) {
	p.logger.Info("Connected to MQTT broker", nil)

	// CleanSession drops broker-side subscriptions, so restore them.
	for _, filter := range p.subs.Filters() {
		p.subscribeAtBroker(filter)
	}
	p.setConnected(true)
}

func (p *PubSub) onConnectionLost(c paho.Client, err error) {
	p.logger.Error("Lost connection to MQTT broker", err, nil)
	p.setConnected(false)
}

func (p *PubSub) setConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	observers := append([]func(bool){}, p.observers...)
	p.mu.Unlock()

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

// Publish sends each message payload to topic with QoS 1 and no retain flag.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	if p.isClosed() {
		return ErrClosed
	}
	for _, msg := range messages {
		token := p.client.Publish(topic, p.config.QoS, false, msg.Payload)
		if err := p.wait(token); err != nil {
			return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
		}
	}
	return nil
}

// Subscribe registers filter. Broker-side subscriptions are restored after
// every reconnect.
func (p *PubSub) Subscribe(ctx context.Context, filter string) (<-chan *message.Message, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	out, first, ok := p.subs.Add(ctx, filter)
	if !ok {
		return nil, ErrClosed
	}
	if first && p.client.IsConnectionOpen() {
		p.subscribeAtBroker(filter)
	}
	return out, nil
}

func (p *PubSub) subscribeAtBroker(filter string) {
	token := p.client.Subscribe(filter, p.config.QoS, p.handler(filter))
	if err := p.wait(token); err != nil {
		p.logger.Error("Failed to subscribe", err, watermill.LogFields{"filter": filter})
		return
	}
	p.logger.Debug("Subscribed", watermill.LogFields{"filter": filter})
}

func (p *PubSub) unsubscribe(filter string) {
	if !p.client.IsConnectionOpen() {
		return
	}
	if err := p.wait(p.client.Unsubscribe(filter)); err != nil {
		p.logger.Error("Failed to unsubscribe", err, watermill.LogFields{"filter": filter})
	}
}

func (p *PubSub) handler(filter string) paho.MessageHandler {
	return func(c paho.Client, m paho.Message) {
		payload := append([]byte(nil), m.Payload()...)
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if p.subs.Deliver(filter, m.Topic(), msg) == 0 {
			p.logger.Debug("Message not acknowledged by any subscriber", watermill.LogFields{"topic": m.Topic()})
		}
	}
}

func (p *PubSub) wait(token paho.Token) error {
	if !token.WaitTimeout(p.config.OperationTimeout) {
		return fmt.Errorf("timed out after %s", p.config.OperationTimeout)
	}
	return token.Error()
}

func (p *PubSub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close ends every subscription and disconnects from the broker.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.subs.Close()
	p.client.Disconnect(250)
	return nil
}
