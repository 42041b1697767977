package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	// ErrUnknownTransport is returned by Build when bridge.transport names no
	// registered broker. The bridge stops retrying on it.
	ErrUnknownTransport = errors.New("unknown transport")
	// ErrConfigRequired is returned by Build for a nil Config.
	ErrConfigRequired = errors.New("transport config is required")
)

// entry is one broker the command bridge can connect through.
type entry struct {
	build Builder
	caps  Capabilities
}

// Registry maps bridge.transport values to broker builders. Names are
// case-insensitive; "MQTT" and "mqtt" select the same entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry holds the brokers registered by the transport packages'
// init functions. Import transport/transports to fill it.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a broker without capability metadata. Status reports only
// its name.
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{Name: normalize(name)})
}

// RegisterWithCapabilities adds a broker and what it supports. A later
// registration under the same name replaces the earlier one.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(name)] = entry{build: builder, caps: caps}
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	return e, ok
}

// GetCapabilities describes the named broker for the status endpoint. An
// unregistered name yields capabilities carrying only that name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	if e, ok := r.lookup(name); ok {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Build connects the broker selected by cfg.GetBridgeTransport. Builder
// errors are returned unwrapped so callers can retry on them.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := normalize(cfg.GetBridgeTransport())
	e, ok := r.lookup(name)
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}
	return e.build(ctx, cfg, logger)
}

// Names lists the registered brokers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Register adds a broker to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a broker and its capabilities to DefaultRegistry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build connects the configured broker through DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
