package ndp

// MetricsReporter receives Neighbor Discovery counters and table gauges.
// The Prometheus collector in internal/metrics implements it. Methods are
// called without the Stack lock held.
type MetricsReporter interface {
	// RecordStateTransition counts a neighbor state change.
	RecordStateTransition(from, to string)

	// IncSolicitations counts a solicitation handed to the Solicitor.
	// kind is one of "multicast_ns", "unicast_ns" or "rs".
	IncSolicitations(kind string)

	// IncEvictions counts a live neighbor replaced on a full cache.
	IncEvictions()

	// IncUnreachable counts a neighbor deleted after its solicitations
	// went unanswered.
	IncUnreachable()

	// IncQueueDrops counts a pending packet dropped on queue overflow.
	IncQueueDrops()

	// IncRouterAdverts counts a processed Router Advertisement.
	IncRouterAdverts()

	// SetNeighbors sets the number of neighbor entries in state.
	SetNeighbors(state string, n int)

	// SetRouters sets the number of default router entries.
	SetRouters(n int)

	// SetPrefixes sets the number of on-link prefixes.
	SetPrefixes(n int)
}

// noopMetrics discards everything.
type noopMetrics struct{}

func (noopMetrics) RecordStateTransition(string, string) {}
func (noopMetrics) IncSolicitations(string)              {}
func (noopMetrics) IncEvictions()                        {}
func (noopMetrics) IncUnreachable()                      {}
func (noopMetrics) IncQueueDrops()                       {}
func (noopMetrics) IncRouterAdverts()                    {}
func (noopMetrics) SetNeighbors(string, int)             {}
func (noopMetrics) SetRouters(int)                       {}
func (noopMetrics) SetPrefixes(int)                      {}
