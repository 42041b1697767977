package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	pubtransport "github.com/drblury/todobridge/transport"

	// Import all transport packages to register them.
	_ "github.com/drblury/todobridge/transport/transports"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Observer returns the connection observer of the pair, if either side
// implements one. The publisher is preferred.
func (t Transport) Observer() (pubtransport.ConnectionObserver, bool) {
	if o, ok := t.Publisher.(pubtransport.ConnectionObserver); ok {
		return o, true
	}
	o, ok := t.Subscriber.(pubtransport.ConnectionObserver)
	return o, ok
}

// Close closes both sides, once each when they are the same value.
func (t Transport) Close() error {
	var err error
	if t.Publisher != nil {
		err = t.Publisher.Close()
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		if e := t.Subscriber.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Factory abstracts how the command bridge initialises its broker transport.
type Factory interface {
	Build(ctx context.Context, conf pubtransport.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf pubtransport.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf pubtransport.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the built-in transport factory that uses the
// transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf pubtransport.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	t, err := pubtransport.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:  t.Publisher,
		Subscriber: t.Subscriber,
	}, nil
}
