// Package bridge connects the record store to a publish/subscribe broker.
// Clients publish commands on <prefix>/command/<name>, the bridge answers on
// <prefix>/response[/<correlationId>] and announces successful mutations on
// <prefix>/todo/<action>.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/runtime/config"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	"github.com/drblury/todobridge/internal/runtime/ids"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
	"github.com/drblury/todobridge/internal/runtime/logging"
	"github.com/drblury/todobridge/internal/runtime/metadata"
	"github.com/drblury/todobridge/internal/runtime/telemetry"
	transportpkg "github.com/drblury/todobridge/internal/runtime/transport"
	pubtransport "github.com/drblury/todobridge/transport"
)

const (
	DefaultConnectRetryInterval = time.Second
	DefaultConnectRetryMax      = 30 * time.Second
	DefaultCloseTimeout         = 10 * time.Second

	handlerName = "todobridge_commands"
)

// State is the lifecycle position of a Bridge.
type State string

const (
	StateStopped      State = "stopped"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSubscribed   State = "subscribed"
	StateDisconnected State = "disconnected"
)

// Status is a point-in-time view of the bridge for diagnostics.
type Status struct {
	Enabled   bool   `json:"enabled"`
	State     State  `json:"state"`
	Transport string `json:"transport"`
	Prefix    string `json:"prefix"`
	ClientID  string `json:"clientId"`

	Capabilities pubtransport.Capabilities `json:"capabilities"`
}

// Bridge turns broker commands into record store calls and publishes the
// outcome. It also implements events.Sink so mutations made elsewhere reach
// broker subscribers.
type Bridge struct {
	conf       pubtransport.Config
	enabled    bool
	prefix     string
	clientID   string
	dispatcher *Dispatcher

	factory    transportpkg.Factory
	logger     logging.ServiceLogger
	metrics    *telemetry.Metrics
	registerer prometheus.Registerer
	notifier   events.Sink
	hooks      Hooks
	now        func() time.Time

	retryInterval time.Duration
	retryMax      time.Duration
	closeTimeout  time.Duration

	mu         sync.Mutex
	started    bool
	connected  bool
	lost       bool
	subscribed bool
	transport  transportpkg.Transport
	router     *message.Router
	cancel     context.CancelFunc
	done       chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches the command and publish collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithPrometheusRegisterer adds Watermill's router metrics to reg.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) { b.registerer = reg }
}

// WithTransportFactory replaces the registry-backed transport factory.
func WithTransportFactory(f transportpkg.Factory) Option {
	return func(b *Bridge) {
		if f != nil {
			b.factory = f
		}
	}
}

// WithNotifier receives the change events of bridge-originated mutations,
// typically the notification hub.
func WithNotifier(sink events.Sink) Option {
	return func(b *Bridge) { b.notifier = sink }
}

// WithHooks adds command hooks after the built-in logging and metrics hooks.
func WithHooks(h Hooks) Option {
	return func(b *Bridge) { b.hooks = b.hooks.Merge(h) }
}

// WithConnectRetry bounds the exponential backoff used while the transport
// cannot be built. Non-positive values keep the defaults.
func WithConnectRetry(initial, max time.Duration) Option {
	return func(b *Bridge) {
		if initial > 0 {
			b.retryInterval = initial
		}
		if max > 0 {
			b.retryMax = max
		}
	}
}

// New builds a stopped bridge. The prefix is derived from conf.TopicPattern.
func New(store record.Store, conf *config.Config, opts ...Option) (*Bridge, error) {
	if store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if conf == nil {
		return nil, errors.New("bridge: config is required")
	}

	b := &Bridge{
		conf:          conf,
		enabled:       conf.BridgeEnabled,
		dispatcher:    NewDispatcher(store),
		factory:       transportpkg.DefaultFactory(),
		logger:        logging.NewNopLogger(),
		now:           time.Now,
		retryInterval: DefaultConnectRetryInterval,
		retryMax:      DefaultConnectRetryMax,
		closeTimeout:  DefaultCloseTimeout,
	}

	for _, opt := range opts {
		opt(b)
	}
	custom := b.hooks
	b.hooks = LoggingHooks(b.logger).Merge(MetricsHooks(b.metrics)).Merge(custom)

	prefix, ok := DerivePrefix(conf.TopicPattern)
	if !ok {
		b.logger.Warn("Invalid bridge topic configuration, using default prefix", logging.LogFields{
			"topic":          conf.TopicPattern,
			"default_prefix": DefaultPrefix,
		})
	}
	b.prefix = prefix

	b.clientID = conf.ClientID
	if b.clientID == "" {
		b.clientID = ids.NewClientID(DefaultPrefix)
	}

	return b, nil
}

// Prefix is the first topic level every bridge topic lives under.
func (b *Bridge) Prefix() string { return b.prefix }

// ClientID is the broker client identifier used for this process.
func (b *Bridge) ClientID() string { return b.clientID }

// Enabled reports whether Start will connect.
func (b *Bridge) Enabled() bool { return b.enabled }

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Bridge) stateLocked() State {
	switch {
	case !b.started:
		return StateStopped
	case b.connected && b.subscribed:
		return StateSubscribed
	case b.connected:
		return StateConnected
	case b.lost:
		return StateDisconnected
	default:
		return StateConnecting
	}
}

// Status returns the diagnostics view.
func (b *Bridge) Status() Status {
	name := strings.ToLower(b.conf.GetBridgeTransport())
	return Status{
		Enabled:      b.enabled,
		State:        b.State(),
		Transport:    name,
		Prefix:       b.prefix,
		ClientID:     b.clientID,
		Capabilities: pubtransport.GetCapabilities(name),
	}
}

// Start begins connecting in the background and returns immediately. A
// disabled bridge stays stopped. Transport failures are retried until Stop.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.enabled {
		b.logger.Info("Command bridge is disabled", nil)
		return nil
	}

	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errspkg.ErrBridgeRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.started = true
	b.connected, b.lost, b.subscribed = false, false, false
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	b.logger.Info("Starting command bridge", logging.LogFields{
		"transport": b.conf.GetBridgeTransport(),
		"broker":    b.conf.GetBroker(),
		"port":      b.conf.GetBrokerPort(),
		"client_id": b.clientID,
		"prefix":    b.prefix,
	})

	go b.run(runCtx, done)
	return nil
}

// Stop disconnects and waits for in-flight commands. It is a no-op when the
// bridge is not running.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	cancel, done, router := b.cancel, b.done, b.router
	b.mu.Unlock()

	b.logger.Info("Stopping command bridge", nil)
	cancel()
	if router != nil {
		if err := router.Close(); err != nil {
			b.logger.Error("Failed to close command router", err, nil)
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("bridge: stop: %w", ctx.Err())
	}

	b.mu.Lock()
	b.started = false
	b.connected, b.lost, b.subscribed = false, false, false
	b.mu.Unlock()
	b.metrics.SetBridgeConnected(false)
	return nil
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	wmLogger := logging.NewWatermillAdapter(b.logger)

	tr, err := b.connect(ctx, wmLogger)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error("Command bridge transport unavailable", err, nil)
		}
		return
	}
	defer func() {
		b.mu.Lock()
		b.transport = transportpkg.Transport{}
		b.router = nil
		b.connected = false
		b.mu.Unlock()
		if err := tr.Close(); err != nil {
			b.logger.Debug("Closing bridge transport", logging.LogFields{"error": err.Error()})
		}
	}()

	router, err := b.newRouter(tr, wmLogger)
	if err != nil {
		b.logger.Error("Failed to create command router", err, nil)
		return
	}

	b.mu.Lock()
	b.transport = tr
	b.router = router
	b.mu.Unlock()

	if observer, ok := tr.Observer(); ok {
		observer.NotifyConnection(b.setConnected)
	} else {
		b.setConnected(true)
	}

	go func() {
		select {
		case <-router.Running():
			b.setSubscribed()
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		b.logger.Error("Command router stopped", err, nil)
	}
}

// connect builds the transport, retrying with exponential backoff until it
// succeeds, the name is unknown, or ctx ends.
func (b *Bridge) connect(ctx context.Context, wmLogger watermill.LoggerAdapter) (transportpkg.Transport, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryInterval
	policy.MaxInterval = b.retryMax

	conf := transportConfig{Config: b.conf, clientID: b.clientID}

	return backoff.Retry(ctx, func() (transportpkg.Transport, error) {
		tr, err := b.factory.Build(ctx, conf, wmLogger)
		if errors.Is(err, pubtransport.ErrUnknownTransport) {
			return transportpkg.Transport{}, backoff.Permanent(err)
		}
		return tr, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.logger.Warn("Command bridge transport unavailable, retrying", logging.LogFields{
				"error":    err.Error(),
				"retry_in": next.String(),
			})
		}),
	)
}

func (b *Bridge) newRouter(tr transportpkg.Transport, wmLogger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: b.closeTimeout}, wmLogger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		b.swallowErrors,
		b.tracer,
		middleware.Recoverer,
	)

	if b.registerer != nil {
		metrics.NewPrometheusMetricsBuilder(b.registerer, "todobridge", "router").AddPrometheusRouterMetrics(router)
	}

	router.AddNoPublisherHandler(
		handlerName,
		SubscriptionFilter(b.prefix),
		tr.Subscriber,
		b.handle,
	)
	return router, nil
}

func (b *Bridge) setConnected(connected bool) {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	was := b.connected
	b.connected = connected
	if connected {
		b.lost = false
	} else if was {
		b.lost = true
	}
	b.mu.Unlock()

	b.metrics.SetBridgeConnected(connected)
	switch {
	case connected && !was:
		b.logger.Info("Command bridge connected", logging.LogFields{"filter": SubscriptionFilter(b.prefix)})
	case !connected && was:
		b.logger.Warn("Command bridge disconnected", nil)
	}
}

func (b *Bridge) setSubscribed() {
	b.mu.Lock()
	b.subscribed = true
	b.mu.Unlock()
	b.logger.Info("Subscribed to topic", logging.LogFields{"filter": SubscriptionFilter(b.prefix)})
}

// handle processes one inbound message. Errors never reach the transport:
// swallowErrors logs and drops them.
func (b *Bridge) handle(msg *message.Message) error {
	topic := msg.Metadata.Get(metadata.KeyTopic)
	name, ok := commandName(b.prefix, topic)
	if !ok {
		b.logger.Trace("Ignoring non-command message", logging.LogFields{"topic": topic})
		return nil
	}

	ctx := msg.Context()
	info := CommandInfo{
		Command:     name,
		Topic:       topic,
		MessageUUID: msg.UUID,
		Context:     ctx,
		StartedAt:   b.now(),
	}
	info.CorrelationID = b.correlationID(msg.Payload, topic)

	msg.Metadata.Set(metadata.KeyCommand, name)
	if info.CorrelationID != "" {
		msg.Metadata.Set(metadata.KeyCorrelationID, info.CorrelationID)
	}

	b.hooks.onStart(info)

	resp, ev, err := b.process(ctx, name, msg.Payload)
	if err != nil {
		return fmt.Errorf("command %s: %w", name, err)
	}

	md := metadata.New(metadata.KeyCommand, name)
	if info.CorrelationID != "" {
		md = md.With(metadata.KeyCorrelationID, info.CorrelationID)
	}
	b.publish(ctx, ResponseTopic(b.prefix, info.CorrelationID), resp, md)

	if ev != nil {
		b.Emit(ctx, *ev)
		if b.notifier != nil {
			b.notifier.Emit(ctx, *ev)
		}
	}

	info.Duration = b.now().Sub(info.StartedAt)
	b.hooks.onDone(info, resp)
	return nil
}

func (b *Bridge) process(ctx context.Context, name string, payload []byte) (Response, *events.ChangeEvent, error) {
	req, err := ParseRequest(name, payload)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			b.logger.Warn("Unknown command", logging.LogFields{"command": name})
		}
		if resp, ok := failureFor(err, b.now()); ok {
			return resp, nil, nil
		}
		return Response{}, nil, err
	}
	return b.dispatcher.Dispatch(ctx, req)
}

// correlationID recovers the optional "correlationId" string. Anything that
// prevents it counts as absent.
func (b *Bridge) correlationID(payload []byte, topic string) string {
	var envelope map[string]any
	if err := jsoncodec.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn("Failed to parse correlation ID from payload", logging.LogFields{
			"topic": topic,
			"error": err.Error(),
		})
		return ""
	}

	raw, ok := envelope["correlationId"]
	if !ok || raw == nil {
		return ""
	}
	id, ok := raw.(string)
	if !ok {
		b.logger.Warn("Ignoring non-string correlation ID", logging.LogFields{"topic": topic})
		return ""
	}
	if pubtransport.HasWildcard(id) {
		b.logger.Warn("Ignoring correlation ID with wildcard characters", logging.LogFields{
			"topic":          topic,
			"correlation_id": id,
		})
		return ""
	}
	return id
}

// Publish serializes payload and sends it to topic at least once without
// retain. While the bridge is not connected the call only logs. Failures are
// logged, never returned.
func (b *Bridge) Publish(ctx context.Context, topic string, payload any) {
	b.publish(ctx, topic, payload, nil)
}

// Emit publishes the topic event of ev under <prefix>/todo/<action>.
func (b *Bridge) Emit(ctx context.Context, ev events.ChangeEvent) {
	action := string(ev.Action)
	b.publish(ctx, EventTopic(b.prefix, action), ev.TopicPayload(), metadata.New(metadata.KeyEventAction, action))
}

func (b *Bridge) publish(ctx context.Context, topic string, payload any, md metadata.Metadata) {
	b.mu.Lock()
	started := b.started
	connected := b.connected
	pub := b.transport.Publisher
	b.mu.Unlock()

	if !connected || pub == nil {
		b.metrics.RecordPublish("dropped")
		fields := logging.LogFields{"topic": topic}
		if started {
			b.logger.Warn("Cannot publish: command bridge is not connected", fields)
		} else {
			b.logger.Debug("Cannot publish: command bridge is stopped", fields)
		}
		return
	}

	body, err := jsoncodec.Marshal(payload)
	if err != nil {
		b.metrics.RecordPublish("error")
		b.logger.Error("Failed to serialize bridge payload", err, logging.LogFields{"topic": topic})
		return
	}

	msg := message.NewMessage(ids.CreateULID(), body)
	msg.Metadata = metadata.ToWatermill(md)
	if ctx != nil {
		msg.SetContext(ctx)
	}

	if err := pub.Publish(topic, msg); err != nil {
		b.metrics.RecordPublish("error")
		b.logger.Error("Failed to publish bridge message", err, logging.LogFields{"topic": topic})
		return
	}
	b.metrics.RecordPublish("ok")
	b.logger.Debug("Published message to topic", logging.LogFields{"topic": topic})
}

// transportConfig overrides the configured client id with the unique one.
type transportConfig struct {
	pubtransport.Config
	clientID string
}

func (c transportConfig) GetClientID() string { return c.clientID }
