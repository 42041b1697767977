// Package telemetry holds the Prometheus collectors and OpenTelemetry tracer
// shared by the hub, the command bridge and the HTTP API.
package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "todobridge"

// Metrics tracks hub and bridge statistics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	mu sync.RWMutex

	counts Snapshot

	broadcastsTotal    prometheus.Counter
	pushSendsTotal     *prometheus.CounterVec
	evictionsTotal     prometheus.Counter
	connectionsCurrent prometheus.Gauge
	commandsTotal      *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	publishesTotal     *prometheus.CounterVec
	bridgeConnected    prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// Snapshot provides a point-in-time view of the counters.
type Snapshot struct {
	Broadcasts       uint64            `json:"broadcasts"`
	PushSent         uint64            `json:"push_sent"`
	PushFailed       uint64            `json:"push_failed"`
	Evictions        uint64            `json:"evictions"`
	Connections      int               `json:"connections"`
	Commands         map[string]uint64 `json:"commands"`
	PublishesDropped uint64            `json:"publishes_dropped"`
	CollectedAt      time.Time         `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates the collectors. Call Register to expose them.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		counts:             Snapshot{Commands: make(map[string]uint64)},
		registerer:         registerer,
		broadcastsTotal:    newCounter("hub", "broadcasts_total", "Total number of change events broadcast to push connections"),
		pushSendsTotal:     newCounterVec("hub", "sends_total", "Push frame sends by result", []string{"result"}),
		evictionsTotal:     newCounter("hub", "evictions_total", "Connections removed after a failed send or because they were closed"),
		connectionsCurrent: newGauge("hub", "connections", "Currently registered push connections"),
		commandsTotal:      newCounterVec("bridge", "commands_total", "Commands handled by the bridge", []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a single command",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		publishesTotal:  newCounterVec("bridge", "publishes_total", "Bridge publishes by result", []string{"result"}),
		bridgeConnected: newGauge("bridge", "connected", "1 while the bridge holds a broker connection"),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.broadcastsTotal,
		m.pushSendsTotal,
		m.evictionsTotal,
		m.connectionsCurrent,
		m.commandsTotal,
		m.commandDuration,
		m.publishesTotal,
		m.bridgeConnected,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordBroadcast records one hub broadcast pass.
func (m *Metrics) RecordBroadcast(sent, failed, evicted int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.Broadcasts++
	m.counts.PushSent += uint64(sent)
	m.counts.PushFailed += uint64(failed)
	m.counts.Evictions += uint64(evicted)

	m.broadcastsTotal.Inc()
	m.pushSendsTotal.WithLabelValues("ok").Add(float64(sent))
	m.pushSendsTotal.WithLabelValues("error").Add(float64(failed))
	m.evictionsTotal.Add(float64(evicted))
}

// SetConnections reports the registry size.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counts.Connections = n
	m.mu.Unlock()
	m.connectionsCurrent.Set(float64(n))
}

// RecordCommand records a handled command. result is "ok", "rejected" or "error".
func (m *Metrics) RecordCommand(command, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counts.Commands[command+":"+result]++
	m.mu.Unlock()

	m.commandsTotal.WithLabelValues(command, result).Inc()
	m.commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// RecordPublish records a bridge publish outcome: "ok", "dropped" or "error".
func (m *Metrics) RecordPublish(result string) {
	if m == nil {
		return
	}
	if result == "dropped" {
		m.mu.Lock()
		m.counts.PublishesDropped++
		m.mu.Unlock()
	}
	m.publishesTotal.WithLabelValues(result).Inc()
}

// SetBridgeConnected reports the broker connection state.
func (m *Metrics) SetBridgeConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.bridgeConnected.Set(1)
		return
	}
	m.bridgeConnected.Set(0)
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Commands: map[string]uint64{}, CollectedAt: time.Now()}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.counts
	snap.Commands = make(map[string]uint64, len(m.counts.Commands))
	for k, v := range m.counts.Commands {
		snap.Commands[k] = v
	}
	snap.CollectedAt = time.Now()
	return snap
}
