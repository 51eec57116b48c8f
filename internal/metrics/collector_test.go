package ndmetrics_test

import (
	"context"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	ndmetrics "github.com/dantte-lp/gond/internal/metrics"
	"github.com/dantte-lp/gond/internal/ndp"
)

var _ ndp.MetricsReporter = (*ndmetrics.Collector)(nil)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := ndmetrics.NewCollector(reg)

	if c.Neighbors == nil || c.StateTransitions == nil || c.Solicitations == nil {
		t.Fatal("metric vectors not initialized")
	}

	c.SetRouters(1)
	c.IncEvictions()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"gond_nd_default_routers", "gond_nd_evictions_total"} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestTableGauges(t *testing.T) {
	t.Parallel()

	c := ndmetrics.NewCollector(prometheus.NewRegistry())

	c.SetNeighbors("Reachable", 4)
	c.SetNeighbors("Stale", 2)
	c.SetNeighbors("Reachable", 3)
	c.SetRouters(2)
	c.SetPrefixes(5)

	if v := gaugeValue(t, c.Neighbors, "Reachable"); v != 3 {
		t.Errorf("neighbors{Reachable} = %v, want 3", v)
	}
	if v := gaugeValue(t, c.Neighbors, "Stale"); v != 2 {
		t.Errorf("neighbors{Stale} = %v, want 2", v)
	}
	if v := metricValue(t, c.Routers).GetGauge().GetValue(); v != 2 {
		t.Errorf("routers = %v, want 2", v)
	}
	if v := metricValue(t, c.Prefixes).GetGauge().GetValue(); v != 5 {
		t.Errorf("prefixes = %v, want 5", v)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()

	c := ndmetrics.NewCollector(prometheus.NewRegistry())

	c.RecordStateTransition("Reachable", "Stale")
	c.RecordStateTransition("Reachable", "Stale")
	c.IncSolicitations("multicast_ns")
	c.IncSolicitations("rs")
	c.IncQueueDrops()
	c.IncUnreachable()
	c.IncRouterAdverts()
	c.IncPacketsReceived("router_advert")
	c.IncPacketsDropped("rate_limited")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"transitions", counterValue(t, c.StateTransitions, "Reachable", "Stale"), 2},
		{"multicast ns", counterValue(t, c.Solicitations, "multicast_ns"), 1},
		{"rs", counterValue(t, c.Solicitations, "rs"), 1},
		{"unicast ns", counterValue(t, c.Solicitations, "unicast_ns"), 0},
		{"queue drops", metricValue(t, c.QueueDrops).GetCounter().GetValue(), 1},
		{"unreachable", metricValue(t, c.Unreachable).GetCounter().GetValue(), 1},
		{"router adverts", metricValue(t, c.RouterAdverts).GetCounter().GetValue(), 1},
		{"received", counterValue(t, c.PacketsReceived, "router_advert"), 1},
		{"dropped", counterValue(t, c.PacketsDropped, "rate_limited"), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

// nopSolicitor satisfies ndp.Solicitor.
type nopSolicitor struct{}

func (nopSolicitor) SendNeighborSolicit(context.Context, ndp.Solicitation) error { return nil }
func (nopSolicitor) SendRouterSolicit(context.Context, int) error                { return nil }

// TestStackReportsToCollector drives a Stack and checks that its counters
// and gauges arrive in Prometheus.
func TestStackReportsToCollector(t *testing.T) {
	t.Parallel()

	c := ndmetrics.NewCollector(prometheus.NewRegistry())

	cfg := ndp.DefaultConfig()
	cfg.MaxRtrSolicitations = 0
	s, err := ndp.New(cfg, slog.New(slog.DiscardHandler), ndp.WithMetrics(c))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddInterface(ndp.Interface{Index: 1, Name: "eth0"}); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	ctx := context.Background()
	if err := s.Enable(ctx, ndp.Handlers{Solicitor: nopSolicitor{}}); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	if _, err := s.AddNeighbor(ctx, ndp.NeighborSpec{
		Addr:      netip.MustParseAddr("fe80::1"),
		Interface: 1,
		LinkAddr:  ndp.LinkAddr{0x02, 0, 0, 0, 0, 1},
	}); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}
	if _, _, err := s.Resolve(ctx, netip.MustParseAddr("fe80::2"), 1, netip.Addr{}, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := s.ProcessRouterAdvert(ctx, ndp.RouterAdvert{
		Source:         netip.MustParseAddr("fe80::1"),
		Interface:      1,
		RouterLifetime: 600,
	}); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	if v := gaugeValue(t, c.Neighbors, "Reachable"); v != 1 {
		t.Errorf("neighbors{Reachable} = %v, want 1", v)
	}
	if v := gaugeValue(t, c.Neighbors, "Incomplete"); v != 1 {
		t.Errorf("neighbors{Incomplete} = %v, want 1", v)
	}
	if v := metricValue(t, c.Routers).GetGauge().GetValue(); v != 1 {
		t.Errorf("routers = %v, want 1", v)
	}
	if v := counterValue(t, c.StateTransitions, "Invalid", "Reachable"); v != 1 {
		t.Errorf("transitions{Invalid->Reachable} = %v, want 1", v)
	}
	if v := counterValue(t, c.Solicitations, "multicast_ns"); v != 1 {
		t.Errorf("solicitations{multicast_ns} = %v, want 1", v)
	}
	if v := metricValue(t, c.RouterAdverts).GetCounter().GetValue(); v != 1 {
		t.Errorf("router adverts = %v, want 1", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	return metricValue(t, gauge).GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	return metricValue(t, counter).GetCounter().GetValue()
}

// metricValue writes a single metric into its protobuf form.
func metricValue(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()

	out := &dto.Metric{}
	if err := m.Write(out); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return out
}
