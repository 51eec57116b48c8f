package ndmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gond"
	subsystem = "nd"
)

// Label names for Neighbor Discovery metrics.
const (
	labelState     = "state"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelKind      = "kind"
	labelType      = "type"
	labelReason    = "reason"
)

// -------------------------------------------------------------------------
// Collector: Prometheus Neighbor Discovery Metrics
// -------------------------------------------------------------------------

// Collector holds all Neighbor Discovery Prometheus metrics. It implements
// ndp.MetricsReporter.
//
// Table gauges mirror the occupancy of the fixed-size tables so operators
// can alert before a table fills. Counters track protocol traffic and the
// housekeeping that removes entries.
type Collector struct {
	// Neighbors tracks neighbor cache entries per reachability state.
	Neighbors *prometheus.GaugeVec

	// Routers tracks the number of default router entries.
	Routers prometheus.Gauge

	// Prefixes tracks the number of on-link prefixes.
	Prefixes prometheus.Gauge

	// StateTransitions counts neighbor state changes labeled with the old
	// and new state (e.g., Reachable->Stale).
	StateTransitions *prometheus.CounterVec

	// Solicitations counts NS and RS messages handed to the network,
	// labeled multicast_ns, unicast_ns or rs.
	Solicitations *prometheus.CounterVec

	// Evictions counts live neighbor entries replaced on a full cache.
	Evictions prometheus.Counter

	// Unreachable counts neighbors deleted after their solicitations went
	// unanswered (RFC 4861 Section 7.3.3).
	Unreachable prometheus.Counter

	// QueueDrops counts packets dropped from a full resolution queue.
	QueueDrops prometheus.Counter

	// RouterAdverts counts processed Router Advertisements.
	RouterAdverts prometheus.Counter

	// PacketsReceived counts inbound ND messages by ICMPv6 type name.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts inbound ND messages discarded before
	// processing, by reason.
	PacketsDropped *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics carry the "gond_nd_" prefix (namespace_subsystem).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Neighbors,
		c.Routers,
		c.Prefixes,
		c.StateTransitions,
		c.Solicitations,
		c.Evictions,
		c.Unreachable,
		c.QueueDrops,
		c.RouterAdverts,
		c.PacketsReceived,
		c.PacketsDropped,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	return &Collector{
		Neighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "neighbors",
			Help:      "Number of neighbor cache entries per reachability state.",
		}, []string{labelState}),

		Routers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "default_routers",
			Help:      "Number of default router entries.",
		}),

		Prefixes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "prefixes",
			Help:      "Number of on-link prefixes.",
		}),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total neighbor cache state transitions.",
		}, []string{labelFromState, labelToState}),

		Solicitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "solicitations_sent_total",
			Help:      "Total Neighbor and Router Solicitations sent.",
		}, []string{labelKind}),

		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evictions_total",
			Help:      "Total neighbor entries evicted from a full cache.",
		}),

		Unreachable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unreachable_total",
			Help:      "Total neighbors deleted after unanswered solicitations (RFC 4861 Section 7.3.3).",
		}),

		QueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_drops_total",
			Help:      "Total packets dropped from a full address resolution queue.",
		}),

		RouterAdverts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "router_adverts_total",
			Help:      "Total Router Advertisements processed.",
		}),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total Neighbor Discovery messages received.",
		}, []string{labelType}),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total Neighbor Discovery messages dropped before processing.",
		}, []string{labelReason}),
	}
}

// -------------------------------------------------------------------------
// Table Gauges
// -------------------------------------------------------------------------

// SetNeighbors sets the neighbor gauge for state.
func (c *Collector) SetNeighbors(state string, n int) {
	c.Neighbors.WithLabelValues(state).Set(float64(n))
}

// SetRouters sets the default router gauge.
func (c *Collector) SetRouters(n int) {
	c.Routers.Set(float64(n))
}

// SetPrefixes sets the prefix gauge.
func (c *Collector) SetPrefixes(n int) {
	c.Prefixes.Set(float64(n))
}

// -------------------------------------------------------------------------
// Neighbor Cache Counters
// -------------------------------------------------------------------------

// RecordStateTransition increments the state transition counter with the
// old and new state labels. Stale->Probe->Invalid sequences are the usual
// signal of a neighbor that went away.
func (c *Collector) RecordStateTransition(from, to string) {
	c.StateTransitions.WithLabelValues(from, to).Inc()
}

// IncSolicitations increments the solicitation counter for kind.
func (c *Collector) IncSolicitations(kind string) {
	c.Solicitations.WithLabelValues(kind).Inc()
}

// IncEvictions increments the eviction counter.
func (c *Collector) IncEvictions() { c.Evictions.Inc() }

// IncUnreachable increments the unreachable deletion counter.
func (c *Collector) IncUnreachable() { c.Unreachable.Inc() }

// IncQueueDrops increments the queue overflow counter.
func (c *Collector) IncQueueDrops() { c.QueueDrops.Inc() }

// IncRouterAdverts increments the processed RA counter.
func (c *Collector) IncRouterAdverts() { c.RouterAdverts.Inc() }

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsReceived increments the received counter for an ICMPv6 type
// name such as "router_advert".
func (c *Collector) IncPacketsReceived(msgType string) {
	c.PacketsReceived.WithLabelValues(msgType).Inc()
}

// IncPacketsDropped increments the dropped counter for reason.
func (c *Collector) IncPacketsDropped(reason string) {
	c.PacketsDropped.WithLabelValues(reason).Inc()
}
