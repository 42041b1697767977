// Package channel provides an in-memory Go channel transport for the command
// bridge. It is useful for testing and single-process demos.
//
// watermill's gochannel only matches exact topics, so PubSub keeps the set of
// active filters and republishes every message to each filter that matches.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/todobridge/internal/runtime/metadata"
	"github.com/drblury/todobridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := New(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
	transport.RegisterWithCapabilities("gochannel", Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: transport.DefaultOutputBuffer}, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// PubSub is a gochannel with MQTT-style wildcard subscriptions.
type PubSub struct {
	gc     *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu      sync.RWMutex
	filters map[string]int
	closed  bool
	closing chan struct{}
}

// New creates an in-memory pub/sub.
func New(cfg gochannel.Config, logger watermill.LoggerAdapter) *PubSub {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &PubSub{
		gc:      gochannel.NewGoChannel(cfg, logger),
		logger:  logger,
		filters: make(map[string]int),
		closing: make(chan struct{}),
	}
}

// Publish stamps topic into each message and delivers a copy to every active
// filter matching topic. Messages without a matching subscriber are dropped.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	metadata.StampTopic(topic, messages...)

	p.mu.RLock()
	targets := make([]string, 0, len(p.filters))
	for filter := range p.filters {
		if transport.MatchTopic(filter, topic) {
			targets = append(targets, filter)
		}
	}
	p.mu.RUnlock()

	for _, filter := range targets {
		copies := make([]*message.Message, 0, len(messages))
		for _, msg := range messages {
			if msg != nil {
				copies = append(copies, msg.Copy())
			}
		}
		if err := p.gc.Publish(filter, copies...); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe accepts exact topics and wildcard filters.
func (p *PubSub) Subscribe(ctx context.Context, filter string) (<-chan *message.Message, error) {
	out, err := p.gc.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.filters[filter]++
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.closing:
		}
		p.release(filter)
	}()

	return out, nil
}

func (p *PubSub) release(filter string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filters[filter] <= 1 {
		delete(p.filters, filter)
		return
	}
	p.filters[filter]--
}

// NotifyConnection implements transport.ConnectionObserver. An in-memory
// pub/sub is always connected.
func (p *PubSub) NotifyConnection(fn func(connected bool)) {
	fn(true)
}

// Close closes the underlying gochannel and every subscription.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closing)
	p.mu.Unlock()

	return p.gc.Close()
}
