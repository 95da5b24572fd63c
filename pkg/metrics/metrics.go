// Package metrics exports server activity as Prometheus metrics.
//
// A Collector implements the observer hooks of the execution engine, the
// binary registry and the interaction server:
//
//	m, err := metrics.New(prometheus.DefaultRegisterer)
//	engine := execution.NewEngine(execution.Config{Observer: m, ...}, codec)
//	binaries := binary.NewRegistry(binary.Config{Observer: m, ...})
//	server := interaction.NewServer(interaction.Config{Observer: m, ...}, ...)
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sila-protocol/sila-go/pkg/binary"
	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

const namespace = "sila"

// Collector holds the server's Prometheus metrics.
type Collector struct {
	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec

	binariesActive  *prometheus.GaugeVec
	binariesRemoved *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	chunksTotal     *prometheus.CounterVec

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	connectionsActive prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg leaves
// them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "started_total",
			Help:      "Total command invocations.",
		}, []string{"command", "observable"}),

		executionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "finished_total",
			Help:      "Total finished command executions by final status.",
		}, []string{"command", "status"}),

		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Command execution duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"command"}),

		binariesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "binary",
			Name:      "active",
			Help:      "Binaries currently held by the registry.",
		}, []string{"direction"}),

		binariesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binary",
			Name:      "removed_total",
			Help:      "Total binaries removed from the registry by reason.",
		}, []string{"direction", "reason"}),

		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binary",
			Name:      "bytes_total",
			Help:      "Total binary bytes transferred in chunks.",
		}, []string{"direction"}),

		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binary",
			Name:      "chunks_total",
			Help:      "Total binary chunks transferred.",
		}, []string{"direction"}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "total",
			Help:      "Total handled requests by operation and status.",
		}, []string{"operation", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "duration_seconds",
			Help:      "Request handling latency in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),

		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections_active",
			Help:      "Open client connections.",
		}),
	}

	if reg == nil {
		return c, nil
	}
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.executionsStarted,
		c.executionsFinished,
		c.executionDuration,
		c.binariesActive,
		c.binariesRemoved,
		c.bytesTotal,
		c.chunksTotal,
		c.requestsTotal,
		c.requestDuration,
		c.connectionsActive,
	}
}

// CommandInvoked counts a command invocation.
func (c *Collector) CommandInvoked(cmd fqi.FQI, observable bool) {
	c.executionsStarted.WithLabelValues(cmd.String(), strconv.FormatBool(observable)).Inc()
}

// ExecutionFinished counts a finished execution and records its duration.
func (c *Collector) ExecutionFinished(cmd fqi.FQI, status wire.ExecutionStatus, elapsed time.Duration) {
	c.executionsFinished.WithLabelValues(cmd.String(), status.String()).Inc()
	c.executionDuration.WithLabelValues(cmd.String()).Observe(elapsed.Seconds())
}

// BinaryCreated tracks a new binary.
func (c *Collector) BinaryCreated(dir binary.Direction) {
	c.binariesActive.WithLabelValues(dir.String()).Inc()
}

// BinaryRemoved tracks a removed binary.
func (c *Collector) BinaryRemoved(dir binary.Direction, reason string) {
	c.binariesActive.WithLabelValues(dir.String()).Dec()
	c.binariesRemoved.WithLabelValues(dir.String(), reason).Inc()
}

// ChunkTransferred counts a transferred chunk.
func (c *Collector) ChunkTransferred(dir binary.Direction, size int) {
	c.chunksTotal.WithLabelValues(dir.String()).Inc()
	c.bytesTotal.WithLabelValues(dir.String()).Add(float64(size))
}

// RequestHandled counts a request and records its latency.
func (c *Collector) RequestHandled(op wire.Operation, status wire.Status, elapsed time.Duration) {
	c.requestsTotal.WithLabelValues(op.String(), status.String()).Inc()
	c.requestDuration.WithLabelValues(op.String()).Observe(elapsed.Seconds())
}

// ConnectionOpened tracks a new client connection.
func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
}

// ConnectionClosed tracks a closed client connection.
func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

var (
	_ execution.Observer   = (*Collector)(nil)
	_ binary.Observer      = (*Collector)(nil)
	_ interaction.Observer = (*Collector)(nil)
)
