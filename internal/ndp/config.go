package ndp

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// -------------------------------------------------------------------------
// Protocol constants: RFC 4861 Section 10
// -------------------------------------------------------------------------

const (
	// DefaultMaxMulticastSolicit is MAX_MULTICAST_SOLICIT.
	DefaultMaxMulticastSolicit = 3

	// DefaultMaxUnicastSolicit is MAX_UNICAST_SOLICIT.
	DefaultMaxUnicastSolicit = 3

	// DefaultReachableTime is REACHABLE_TIME.
	DefaultReachableTime = 30 * time.Second

	// DefaultRetransTimer is RETRANS_TIMER.
	DefaultRetransTimer = time.Second

	// DefaultDelayFirstProbeTime is DELAY_FIRST_PROBE_TIME.
	DefaultDelayFirstProbeTime = 5 * time.Second

	// DefaultMaxRtrSolicitations is MAX_RTR_SOLICITATIONS.
	DefaultMaxRtrSolicitations = 3

	// DefaultRtrSolicitationInterval is RTR_SOLICITATION_INTERVAL.
	DefaultRtrSolicitationInterval = 4 * time.Second

	// DefaultRtrSolicitationDelay is the delay before the first Router
	// Solicitation after an interface comes up.
	DefaultRtrSolicitationDelay = time.Second

	// DefaultFastTick is the period of the fast timer.
	DefaultFastTick = 100 * time.Millisecond

	// DefaultSlowTick is the period of the slow timer.
	DefaultSlowTick = time.Second
)

// ErrInvalidConfig indicates a Config field is out of range.
var ErrInvalidConfig = errors.New("invalid neighbor discovery configuration")

// Config holds the table sizes and protocol timers of a Stack. They are
// fixed when the Stack is created. ReachableTime and RetransTimer are the
// initial values; Router Advertisements may change them later.
type Config struct {
	// NeighborCacheSize is the number of neighbor cache slots.
	NeighborCacheSize int

	// RouterTableSize is the number of default router slots.
	RouterTableSize int

	// PrefixListSize is the number of on-link prefix slots.
	PrefixListSize int

	// MaxAddresses is the number of interface address slots shared by
	// all interfaces.
	MaxAddresses int

	// MaxInterfaces bounds the number of interfaces.
	MaxInterfaces int

	// MaxMulticastSolicit is the number of multicast Neighbor
	// Solicitations sent while resolving an address.
	MaxMulticastSolicit uint32

	// MaxUnicastSolicit is the number of unicast Neighbor Solicitations
	// sent while probing a neighbor.
	MaxUnicastSolicit uint32

	// ReachableTime is how long a confirmation keeps a neighbor Reachable.
	ReachableTime time.Duration

	// RetransTimer is the interval between Neighbor Solicitations.
	RetransTimer time.Duration

	// DelayFirstProbeTime is how long a neighbor stays in Delay.
	DelayFirstProbeTime time.Duration

	// FastTick is the period of the fast timer (Incomplete/Probe).
	FastTick time.Duration

	// SlowTick is the period of the slow timer (aging).
	SlowTick time.Duration

	// QueueDepth is the number of packets held per unresolved neighbor.
	QueueDepth int

	// EvictOnFull lets a new neighbor replace a Stale or Reachable one
	// when the cache is full.
	EvictOnFull bool

	// MaxRtrSolicitations is the number of Router Solicitations sent
	// after an interface comes up. Zero disables router solicitation.
	MaxRtrSolicitations uint32

	// RtrSolicitationInterval is the interval between Router Solicitations.
	RtrSolicitationInterval time.Duration

	// RtrSolicitationDelay is the delay before the first Router Solicitation.
	RtrSolicitationDelay time.Duration
}

// DefaultConfig returns a Config with RFC 4861 defaults and small tables.
func DefaultConfig() Config {
	return Config{
		NeighborCacheSize:       16,
		RouterTableSize:         8,
		PrefixListSize:          8,
		MaxAddresses:            12,
		MaxInterfaces:           4,
		MaxMulticastSolicit:     DefaultMaxMulticastSolicit,
		MaxUnicastSolicit:       DefaultMaxUnicastSolicit,
		ReachableTime:           DefaultReachableTime,
		RetransTimer:            DefaultRetransTimer,
		DelayFirstProbeTime:     DefaultDelayFirstProbeTime,
		FastTick:                DefaultFastTick,
		SlowTick:                DefaultSlowTick,
		QueueDepth:              4,
		EvictOnFull:             true,
		MaxRtrSolicitations:     DefaultMaxRtrSolicitations,
		RtrSolicitationInterval: DefaultRtrSolicitationInterval,
		RtrSolicitationDelay:    DefaultRtrSolicitationDelay,
	}
}

// Validate checks that every table size and timer is usable.
func (c Config) Validate() error {
	sizes := []struct {
		name string
		v    int
	}{
		{"neighbor cache size", c.NeighborCacheSize},
		{"router table size", c.RouterTableSize},
		{"prefix list size", c.PrefixListSize},
		{"max addresses", c.MaxAddresses},
		{"max interfaces", c.MaxInterfaces},
		{"queue depth", c.QueueDepth},
	}
	for _, s := range sizes {
		if s.v < 1 || s.v > math.MaxInt16 {
			return fmt.Errorf("%s %d: %w", s.name, s.v, ErrInvalidConfig)
		}
	}

	if c.MaxMulticastSolicit < 1 {
		return fmt.Errorf("max multicast solicit must be >= 1: %w", ErrInvalidConfig)
	}
	if c.MaxUnicastSolicit < 1 {
		return fmt.Errorf("max unicast solicit must be >= 1: %w", ErrInvalidConfig)
	}

	timers := []struct {
		name string
		v    time.Duration
	}{
		{"reachable time", c.ReachableTime},
		{"retrans timer", c.RetransTimer},
		{"delay first probe time", c.DelayFirstProbeTime},
		{"fast tick", c.FastTick},
		{"slow tick", c.SlowTick},
	}
	for _, t := range timers {
		if t.v <= 0 {
			return fmt.Errorf("%s %s: %w", t.name, t.v, ErrInvalidConfig)
		}
	}

	if c.MaxRtrSolicitations > 0 && c.RtrSolicitationInterval <= 0 {
		return fmt.Errorf("router solicitation interval %s: %w", c.RtrSolicitationInterval, ErrInvalidConfig)
	}

	return nil
}

// ticksOf converts d to a whole number of tick periods, at least one.
func ticksOf(d, tick time.Duration) uint32 {
	n := d / tick
	if n < 1 {
		return 1
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
