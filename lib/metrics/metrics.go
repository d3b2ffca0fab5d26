// Package metrics exports wire, session and pool counters to Prometheus.
//
// A Collector satisfies both peer.Observer and pool.Observer, so a single
// instance can be plugged into pool.Config.Metrics and pool.Config.Peer.Metrics.
package metrics

import (
	"net/http"

	"github.com/btcpeer/btcpeer/lib/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

const (
	// Namespace prefixes every metric exported by this package.
	Namespace = "btcpeer"

	// otherCommand labels messages whose command has no schema.
	otherCommand = "other"
)

// Collector holds the metrics exposed by this package.
type Collector struct {
	// Frame outcomes by status.
	Frames *prometheus.CounterVec
	// Decoded messages by command.
	Messages *prometheus.CounterVec
	// Well-formed frames with a command that has no schema.
	UnknownCommands prometheus.Counter
	// Sessions that connected and sent version.
	SessionsOpened prometheus.Counter
	// Sessions that completed the handshake.
	SessionsEstablished prometheus.Counter
	// Terminated sessions by reason.
	SessionsTerminated *prometheus.CounterVec
	// Sessions currently alive in the pool.
	Alive prometheus.Gauge
}

// New builds a Collector and registers it with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Number of frame decode outcomes by status.",
		}, []string{"status"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wire",
			Name:      "messages_total",
			Help:      "Number of complete frames received by command.",
		}, []string{"command"}),
		UnknownCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wire",
			Name:      "unknown_commands_total",
			Help:      "Number of frames dropped for an unknown command.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "peer",
			Name:      "sessions_opened_total",
			Help:      "Number of sessions that connected.",
		}),
		SessionsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "peer",
			Name:      "sessions_established_total",
			Help:      "Number of sessions that completed the handshake.",
		}),
		SessionsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "peer",
			Name:      "sessions_terminated_total",
			Help:      "Number of terminated sessions by reason.",
		}, []string{"reason"}),
		Alive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pool",
			Name:      "alive",
			Help:      "Number of sessions alive in the pool.",
		}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			return nil, oops.Wrapf(err, "registering metrics")
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.Frames,
		c.Messages,
		c.UnknownCommands,
		c.SessionsOpened,
		c.SessionsEstablished,
		c.SessionsTerminated,
		c.Alive,
	}
}

// ObserveFrame implements wire.FrameObserver.
func (c *Collector) ObserveFrame(status wire.FrameStatus, command string) {
	c.Frames.WithLabelValues(status.String()).Inc()
	if status != wire.FrameAdvance {
		return
	}
	// Peers choose the command string; keep label cardinality bounded.
	if _, ok := wire.Lookup(command); !ok {
		command = otherCommand
	}
	c.Messages.WithLabelValues(command).Inc()
}

// ObserveUnknownCommand implements wire.FrameObserver.
func (c *Collector) ObserveUnknownCommand(string) {
	c.UnknownCommands.Inc()
}

// SessionOpened implements peer.Observer.
func (c *Collector) SessionOpened() {
	c.SessionsOpened.Inc()
}

// SessionEstablished implements peer.Observer.
func (c *Collector) SessionEstablished() {
	c.SessionsEstablished.Inc()
}

// SessionTerminated implements peer.Observer. reason is a peer.TerminationReason value.
func (c *Collector) SessionTerminated(reason string) {
	c.SessionsTerminated.WithLabelValues(reason).Inc()
}

// PoolAlive implements pool.Observer.
func (c *Collector) PoolAlive(n int) {
	c.Alive.Set(float64(n))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
