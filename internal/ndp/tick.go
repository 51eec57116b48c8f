package ndp

import (
	"context"
	"log/slog"
)

// -------------------------------------------------------------------------
// Periodic updates
// -------------------------------------------------------------------------

// FastTick runs the retransmit timers of Incomplete and Probe entries
// (RFC 4861 Section 7.3.3). It is called once per Config.FastTick. When a
// timer reaches zero the entry is deleted if its solicitation budget is
// spent, otherwise one more solicitation is sent (unicast in Probe) and
// the timer is reloaded.
func (s *Stack) FastTick(ctx context.Context) {
	s.mu.Lock()
	if _, ok := s.mode.(enabledMode); !ok {
		s.mu.Unlock()
		return
	}

	fx := &effects{}
	for i := range s.cache.entries {
		e := &s.cache.entries[i]
		if e.state != StateIncomplete && e.state != StateProbe {
			continue
		}

		if e.retransTicks > 0 {
			e.retransTicks--
		}
		if e.retransTicks > 0 {
			continue
		}

		ev := EventRetransExpired
		if e.solicitsLeft == 0 {
			ev = EventSolicitsExhausted
		}
		s.runActionsLocked(i, ApplyEvent(e.state, ev), fx)
	}
	s.unlock(ctx, fx)
}

// SlowTick ages the tables once per Config.SlowTick: the neighbor cache,
// then the default routers, then the prefix list, then router
// solicitation.
func (s *Stack) SlowTick(ctx context.Context) {
	s.mu.Lock()
	if _, ok := s.mode.(enabledMode); !ok {
		s.mu.Unlock()
		return
	}

	fx := &effects{}
	s.ageNeighborsLocked(fx)
	s.ageRoutersLocked()
	s.agePrefixesLocked(fx)
	s.solicitRoutersLocked(fx)
	s.unlock(ctx, fx)
}

// ageNeighborsLocked runs the Reachable and Delay timers and counts Stale
// idle time. Static entries do not age.
func (s *Stack) ageNeighborsLocked(fx *effects) {
	for i := range s.cache.entries {
		e := &s.cache.entries[i]
		if e.static {
			continue
		}

		switch e.state {
		case StateReachable, StateDelay:
			if e.expiresIn > 0 {
				e.expiresIn--
			}
			if e.expiresIn > 0 {
				continue
			}
			ev := EventReachableExpired
			if e.state == StateDelay {
				ev = EventDelayExpired
			}
			s.runActionsLocked(i, ApplyEvent(e.state, ev), fx)
		case StateStale:
			e.idle++
		}
	}
}

func (s *Stack) ageRoutersLocked() {
	var buf [8]int
	for _, i := range s.routers.tick(buf[:0]) {
		s.logger.Debug("default router lifetime expired",
			slog.String("router", s.routers.entries[i].addr.String()),
		)
		s.deleteRouterLocked(i)
	}
}

func (s *Stack) agePrefixesLocked(fx *effects) {
	var buf [8]int16
	for _, idx := range s.prefixes.tick(buf[:0]) {
		s.deletePrefixLocked(idx, fx)
	}
}

// solicitRoutersLocked sends Router Solicitations on interfaces that
// have not heard a Router Advertisement yet (RFC 4861 Section 6.3.7).
func (s *Stack) solicitRoutersLocked(fx *effects) {
	for _, st := range s.ifaces {
		if !st.up || st.rsLeft == 0 {
			continue
		}
		if st.rsTimer > 0 {
			st.rsTimer--
		}
		if st.rsTimer > 0 {
			continue
		}

		fx.routerSolicits = append(fx.routerSolicits, st.Index)
		st.rsLeft--
		st.rsTimer = s.rsIntervalTicks
	}
}
