// Package config manages gond daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/gond/internal/ndp"
	"github.com/dantte-lp/gond/internal/route"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gond configuration.
type Config struct {
	API        APIConfig         `koanf:"api"`
	Metrics    MetricsConfig     `koanf:"metrics"`
	Log        LogConfig         `koanf:"log"`
	ND         NDConfig          `koanf:"nd"`
	Interfaces []InterfaceConfig `koanf:"interfaces"`
	Neighbors  []NeighborConfig  `koanf:"neighbors"`
	Routers    []RouterConfig    `koanf:"routers"`
	Prefixes   []PrefixConfig    `koanf:"prefixes"`
}

// APIConfig holds the ConnectRPC admin server configuration.
type APIConfig struct {
	// Addr is the admin API listen address (e.g., "127.0.0.1:50061").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9101").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// NDConfig holds the Neighbor Discovery table sizes and protocol timers.
// They are fixed when the daemon starts; SIGHUP does not change them.
type NDConfig struct {
	NeighborCacheSize int `koanf:"neighbor_cache_size"`
	RouterTableSize   int `koanf:"router_table_size"`
	PrefixListSize    int `koanf:"prefix_list_size"`
	MaxAddresses      int `koanf:"max_addresses"`

	// RFC 4861 Section 10 protocol constants.
	MaxMulticastSolicit uint32        `koanf:"max_multicast_solicit"`
	MaxUnicastSolicit   uint32        `koanf:"max_unicast_solicit"`
	ReachableTime       time.Duration `koanf:"reachable_time"`
	RetransTimer        time.Duration `koanf:"retrans_timer"`
	DelayFirstProbeTime time.Duration `koanf:"delay_first_probe_time"`

	// Periodic driver tick periods.
	FastTick time.Duration `koanf:"fast_tick"`
	SlowTick time.Duration `koanf:"slow_tick"`

	// QueueDepth is the number of packets held per unresolved neighbor.
	QueueDepth int `koanf:"queue_depth"`

	// EvictOnFull allows Stale and Reachable entries to be replaced when
	// the neighbor cache is full.
	EvictOnFull bool `koanf:"evict_on_full"`

	// Router solicitation (RFC 4861 Section 6.3.7). Zero solicitations
	// disables it.
	MaxRtrSolicitations     uint32        `koanf:"max_rtr_solicitations"`
	RtrSolicitationInterval time.Duration `koanf:"rtr_solicitation_interval"`
	RtrSolicitationDelay    time.Duration `koanf:"rtr_solicitation_delay"`

	// RxRateLimit bounds inbound ND messages per second per interface.
	// Zero disables the limit.
	RxRateLimit float64 `koanf:"rx_rate_limit"`

	// RxBurst is the token bucket size of the inbound limiter.
	RxBurst int `koanf:"rx_burst"`

	// DestinationCacheSize bounds the destination cache. Zero selects
	// route.DefaultSize.
	DestinationCacheSize int `koanf:"destination_cache_size"`
}

// InterfaceConfig describes one interface Neighbor Discovery runs on.
type InterfaceConfig struct {
	// Name is the kernel interface name (e.g., "eth0").
	Name string `koanf:"name"`

	// LinkAddr overrides the hardware address read from the kernel
	// (e.g., "02:00:00:00:00:01"). Optional.
	LinkAddr string `koanf:"link_addr"`

	// Autoconf enables SLAAC from Router Advertisement prefixes.
	Autoconf bool `koanf:"autoconf"`

	// Addresses are manually configured addresses in prefix form
	// (e.g., "2001:db8::1/64").
	Addresses []string `koanf:"addresses"`
}

// NeighborConfig describes a static neighbor cache entry.
type NeighborConfig struct {
	Addr      string `koanf:"addr"`
	Interface string `koanf:"interface"`
	LinkAddr  string `koanf:"link_addr"`
}

// RouterConfig describes a static default router.
type RouterConfig struct {
	Addr      string `koanf:"addr"`
	Interface string `koanf:"interface"`
}

// PrefixConfig describes a static on-link prefix.
type PrefixConfig struct {
	Prefix string `koanf:"prefix"`

	// Lifetime is the valid lifetime; zero means infinite.
	Lifetime time.Duration `koanf:"lifetime"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. The
// Neighbor Discovery section follows the RFC 4861 Section 10 constants
// carried by ndp.DefaultConfig.
func DefaultConfig() *Config {
	nd := ndp.DefaultConfig()

	return &Config{
		API: APIConfig{
			Addr: "127.0.0.1:50061",
		},
		Metrics: MetricsConfig{
			Addr: ":9101",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		ND: NDConfig{
			NeighborCacheSize:       nd.NeighborCacheSize,
			RouterTableSize:         nd.RouterTableSize,
			PrefixListSize:          nd.PrefixListSize,
			MaxAddresses:            nd.MaxAddresses,
			MaxMulticastSolicit:     nd.MaxMulticastSolicit,
			MaxUnicastSolicit:       nd.MaxUnicastSolicit,
			ReachableTime:           nd.ReachableTime,
			RetransTimer:            nd.RetransTimer,
			DelayFirstProbeTime:     nd.DelayFirstProbeTime,
			FastTick:                nd.FastTick,
			SlowTick:                nd.SlowTick,
			QueueDepth:              nd.QueueDepth,
			EvictOnFull:             nd.EvictOnFull,
			MaxRtrSolicitations:     nd.MaxRtrSolicitations,
			RtrSolicitationInterval: nd.RtrSolicitationInterval,
			RtrSolicitationDelay:    nd.RtrSolicitationDelay,
			RxRateLimit:             100,
			RxBurst:                 50,
			DestinationCacheSize:    route.DefaultSize,
		},
	}
}

// StackConfig converts the ND section into an ndp.Config. The interface
// limit is the number of configured interfaces, but at least the ndp
// default so interfaces discovered later still fit.
func (c *Config) StackConfig() ndp.Config {
	out := ndp.DefaultConfig()
	out.NeighborCacheSize = c.ND.NeighborCacheSize
	out.RouterTableSize = c.ND.RouterTableSize
	out.PrefixListSize = c.ND.PrefixListSize
	out.MaxAddresses = c.ND.MaxAddresses
	out.MaxInterfaces = max(out.MaxInterfaces, len(c.Interfaces))
	out.MaxMulticastSolicit = c.ND.MaxMulticastSolicit
	out.MaxUnicastSolicit = c.ND.MaxUnicastSolicit
	out.ReachableTime = c.ND.ReachableTime
	out.RetransTimer = c.ND.RetransTimer
	out.DelayFirstProbeTime = c.ND.DelayFirstProbeTime
	out.FastTick = c.ND.FastTick
	out.SlowTick = c.ND.SlowTick
	out.QueueDepth = c.ND.QueueDepth
	out.EvictOnFull = c.ND.EvictOnFull
	out.MaxRtrSolicitations = c.ND.MaxRtrSolicitations
	out.RtrSolicitationInterval = c.ND.RtrSolicitationInterval
	out.RtrSolicitationDelay = c.ND.RtrSolicitationDelay
	return out
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gond configuration.
// Variables are named GOND_<section>_<key>, e.g., GOND_API_ADDR.
const envPrefix = "GOND_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOND_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping (the first underscore separates the
// section, the rest of the name is the key):
//
//	GOND_API_ADDR           -> api.addr
//	GOND_METRICS_PATH       -> metrics.path
//	GOND_LOG_LEVEL          -> log.level
//	GOND_ND_REACHABLE_TIME  -> nd.reachable_time
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOND_ND_REACHABLE_TIME -> nd.reachable_time.
// Only the section separator becomes a dot so keys keep their underscores.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

// loadDefaults writes the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	nd := defaults.ND
	defaultMap := map[string]any{
		"api.addr":                     defaults.API.Addr,
		"metrics.addr":                 defaults.Metrics.Addr,
		"metrics.path":                 defaults.Metrics.Path,
		"log.level":                    defaults.Log.Level,
		"log.format":                   defaults.Log.Format,
		"nd.neighbor_cache_size":       nd.NeighborCacheSize,
		"nd.router_table_size":         nd.RouterTableSize,
		"nd.prefix_list_size":          nd.PrefixListSize,
		"nd.max_addresses":             nd.MaxAddresses,
		"nd.max_multicast_solicit":     nd.MaxMulticastSolicit,
		"nd.max_unicast_solicit":       nd.MaxUnicastSolicit,
		"nd.reachable_time":            nd.ReachableTime.String(),
		"nd.retrans_timer":             nd.RetransTimer.String(),
		"nd.delay_first_probe_time":    nd.DelayFirstProbeTime.String(),
		"nd.fast_tick":                 nd.FastTick.String(),
		"nd.slow_tick":                 nd.SlowTick.String(),
		"nd.queue_depth":               nd.QueueDepth,
		"nd.evict_on_full":             nd.EvictOnFull,
		"nd.max_rtr_solicitations":     nd.MaxRtrSolicitations,
		"nd.rtr_solicitation_interval": nd.RtrSolicitationInterval.String(),
		"nd.rtr_solicitation_delay":    nd.RtrSolicitationDelay.String(),
		"nd.rx_rate_limit":             nd.RxRateLimit,
		"nd.rx_burst":                  nd.RxBurst,
		"nd.destination_cache_size":    nd.DestinationCacheSize,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAPIAddr indicates the admin API listen address is empty.
	ErrEmptyAPIAddr = errors.New("api.addr must not be empty")

	// ErrInvalidND indicates the nd section fails ndp.Config validation.
	ErrInvalidND = errors.New("nd section is invalid")

	// ErrInvalidRateLimit indicates a negative rate limit or burst.
	ErrInvalidRateLimit = errors.New("nd.rx_rate_limit and nd.rx_burst must be >= 0")

	// ErrInvalidInterface indicates an interface entry without a name.
	ErrInvalidInterface = errors.New("interface name must not be empty")

	// ErrDuplicateInterface indicates two interface entries share a name.
	ErrDuplicateInterface = errors.New("duplicate interface")

	// ErrUnknownInterface indicates a static entry names an interface that
	// is not configured.
	ErrUnknownInterface = errors.New("unknown interface")

	// ErrInvalidAddress indicates an unparsable or non-IPv6 address.
	ErrInvalidAddress = errors.New("invalid IPv6 address")

	// ErrInvalidLinkAddr indicates an unparsable link-layer address.
	ErrInvalidLinkAddr = errors.New("invalid link-layer address")

	// ErrInvalidPrefix indicates an unparsable or non-IPv6 prefix.
	ErrInvalidPrefix = errors.New("invalid IPv6 prefix")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return ErrEmptyAPIAddr
	}

	if err := cfg.StackConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidND, err)
	}

	if cfg.ND.RxRateLimit < 0 || cfg.ND.RxBurst < 0 {
		return ErrInvalidRateLimit
	}

	if cfg.ND.DestinationCacheSize < 0 {
		return fmt.Errorf("nd.destination_cache_size %d: %w", cfg.ND.DestinationCacheSize, ErrInvalidND)
	}

	names, err := validateInterfaces(cfg.Interfaces)
	if err != nil {
		return err
	}

	if err := validateNeighbors(cfg.Neighbors, names); err != nil {
		return err
	}

	if err := validateRouters(cfg.Routers, names); err != nil {
		return err
	}

	return validatePrefixes(cfg.Prefixes)
}

func validateInterfaces(ifaces []InterfaceConfig) (map[string]struct{}, error) {
	names := make(map[string]struct{}, len(ifaces))

	for i, ic := range ifaces {
		if ic.Name == "" {
			return nil, fmt.Errorf("interfaces[%d]: %w", i, ErrInvalidInterface)
		}
		if _, dup := names[ic.Name]; dup {
			return nil, fmt.Errorf("interfaces[%d] %q: %w", i, ic.Name, ErrDuplicateInterface)
		}
		names[ic.Name] = struct{}{}

		if ic.LinkAddr != "" {
			if _, err := ndp.ParseLinkAddr(ic.LinkAddr); err != nil {
				return nil, fmt.Errorf("interfaces[%d] link_addr %q: %w", i, ic.LinkAddr, ErrInvalidLinkAddr)
			}
		}
		for _, a := range ic.Addresses {
			if _, err := ParsePrefix(a); err != nil {
				return nil, fmt.Errorf("interfaces[%d] address: %w", i, err)
			}
		}
	}

	return names, nil
}

func validateNeighbors(neighbors []NeighborConfig, ifaces map[string]struct{}) error {
	for i, nc := range neighbors {
		if _, err := ParseAddr(nc.Addr); err != nil {
			return fmt.Errorf("neighbors[%d]: %w", i, err)
		}
		if _, ok := ifaces[nc.Interface]; !ok {
			return fmt.Errorf("neighbors[%d] interface %q: %w", i, nc.Interface, ErrUnknownInterface)
		}
		if _, err := ndp.ParseLinkAddr(nc.LinkAddr); err != nil {
			return fmt.Errorf("neighbors[%d] link_addr %q: %w", i, nc.LinkAddr, ErrInvalidLinkAddr)
		}
	}
	return nil
}

func validateRouters(routers []RouterConfig, ifaces map[string]struct{}) error {
	for i, rc := range routers {
		if _, err := ParseAddr(rc.Addr); err != nil {
			return fmt.Errorf("routers[%d]: %w", i, err)
		}
		if _, ok := ifaces[rc.Interface]; !ok {
			return fmt.Errorf("routers[%d] interface %q: %w", i, rc.Interface, ErrUnknownInterface)
		}
	}
	return nil
}

func validatePrefixes(prefixes []PrefixConfig) error {
	for i, pc := range prefixes {
		if _, err := ParsePrefix(pc.Prefix); err != nil {
			return fmt.Errorf("prefixes[%d]: %w", i, err)
		}
		if pc.Lifetime < 0 {
			return fmt.Errorf("prefixes[%d] lifetime %s: %w", i, pc.Lifetime, ErrInvalidPrefix)
		}
	}
	return nil
}

// ParseAddr parses s as an IPv6 address.
func ParseAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return netip.Addr{}, fmt.Errorf("%q: %w", s, ErrInvalidAddress)
	}
	return addr, nil
}

// ParsePrefix parses s as an IPv6 prefix, keeping the host bits.
func ParsePrefix(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil || !p.Addr().Is6() || p.Addr().Is4In6() {
		return netip.Prefix{}, fmt.Errorf("%q: %w", s, ErrInvalidPrefix)
	}
	return p, nil
}

// PrefixLifetime converts a configured lifetime to seconds, mapping zero
// to ndp.InfiniteLifetime.
func (pc PrefixConfig) PrefixLifetime() uint32 {
	if pc.Lifetime <= 0 {
		return ndp.InfiniteLifetime
	}
	secs := pc.Lifetime / time.Second
	if secs >= time.Duration(ndp.InfiniteLifetime) {
		return ndp.InfiniteLifetime - 1
	}
	return uint32(secs) //nolint:gosec // bounded above.
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
