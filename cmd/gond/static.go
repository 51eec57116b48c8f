//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/dantte-lp/gond/internal/config"
	"github.com/dantte-lp/gond/internal/ndp"
)

// staticTables is the part of *ndp.Stack the static reconciler drives.
type staticTables interface {
	AddNeighbor(ctx context.Context, spec ndp.NeighborSpec) (ndp.NeighborEntry, error)
	DeleteNeighbor(ctx context.Context, addr netip.Addr) error
	AddRouter(addr netip.Addr, iface int, lifetime uint16, kind ndp.RouterKind) (ndp.RouterEntry, error)
	DeleteRouter(addr netip.Addr) error
	AddPrefix(prefix netip.Prefix, lifetime uint32) error
	DeletePrefix(ctx context.Context, prefix netip.Prefix) error
}

// staticSet is the set of table entries that came from the configuration.
// Entries added through the admin API are not tracked and survive reloads.
type staticSet struct {
	neighbors map[netip.Addr]struct{}
	routers   map[netip.Addr]struct{}
	prefixes  map[netip.Prefix]struct{}
}

func newStaticSet() *staticSet {
	return &staticSet{
		neighbors: make(map[netip.Addr]struct{}),
		routers:   make(map[netip.Addr]struct{}),
		prefixes:  make(map[netip.Prefix]struct{}),
	}
}

// reconcileStatic applies the static neighbors, routers and prefixes of cfg
// and removes the ones a previous reconciliation added that cfg no longer
// lists. ifaces maps interface names to kernel indexes. Prefixes go first
// so that static routers inside them are on-link. Returns the new set and
// the number of entries applied and removed.
func reconcileStatic(
	ctx context.Context,
	tables staticTables,
	cfg *config.Config,
	ifaces map[string]int,
	prev *staticSet,
	logger *slog.Logger,
) (next *staticSet, applied, removed int) {
	next = newStaticSet()

	for _, pc := range cfg.Prefixes {
		p, err := config.ParsePrefix(pc.Prefix)
		if err != nil {
			logger.Error("invalid static prefix, skipping", slog.String("error", err.Error()))
			continue
		}
		p = p.Masked()
		if err := tables.AddPrefix(p, pc.PrefixLifetime()); err != nil && !errors.Is(err, ndp.ErrDuplicate) {
			logger.Error("failed to add static prefix",
				slog.String("prefix", p.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		next.prefixes[p] = struct{}{}
		applied++
	}

	for _, nc := range cfg.Neighbors {
		spec, err := neighborSpec(nc, ifaces)
		if err != nil {
			logger.Error("invalid static neighbor, skipping",
				slog.String("addr", nc.Addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := tables.AddNeighbor(ctx, spec); err != nil {
			logger.Error("failed to add static neighbor",
				slog.String("addr", nc.Addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		next.neighbors[spec.Addr] = struct{}{}
		applied++
	}

	for _, rc := range cfg.Routers {
		addr, err := config.ParseAddr(rc.Addr)
		if err != nil {
			logger.Error("invalid static router, skipping", slog.String("error", err.Error()))
			continue
		}
		idx, ok := ifaces[rc.Interface]
		if !ok {
			logger.Error("static router on unknown interface, skipping",
				slog.String("router", rc.Addr),
				slog.String("interface", rc.Interface),
			)
			continue
		}
		if _, err := tables.AddRouter(addr, idx, ndp.InfiniteRouterLifetime, ndp.RouterStatic); err != nil {
			logger.Error("failed to add static router",
				slog.String("router", rc.Addr),
				slog.String("error", err.Error()),
			)
			continue
		}
		next.routers[addr] = struct{}{}
		applied++
	}

	if prev == nil {
		return next, applied, 0
	}

	for addr := range prev.routers {
		if _, keep := next.routers[addr]; !keep && tables.DeleteRouter(addr) == nil {
			removed++
		}
	}
	for addr := range prev.neighbors {
		if _, keep := next.neighbors[addr]; !keep && tables.DeleteNeighbor(ctx, addr) == nil {
			removed++
		}
	}
	for p := range prev.prefixes {
		if _, keep := next.prefixes[p]; !keep && tables.DeletePrefix(ctx, p) == nil {
			removed++
		}
	}

	return next, applied, removed
}

func neighborSpec(nc config.NeighborConfig, ifaces map[string]int) (ndp.NeighborSpec, error) {
	addr, err := config.ParseAddr(nc.Addr)
	if err != nil {
		return ndp.NeighborSpec{}, err //nolint:wrapcheck // config errors already name the value.
	}
	la, err := ndp.ParseLinkAddr(nc.LinkAddr)
	if err != nil {
		return ndp.NeighborSpec{}, err //nolint:wrapcheck // ParseLinkAddr errors already name the value.
	}
	idx, ok := ifaces[nc.Interface]
	if !ok {
		return ndp.NeighborSpec{}, fmt.Errorf("interface %q: %w", nc.Interface, config.ErrUnknownInterface)
	}

	return ndp.NeighborSpec{
		Addr:      addr,
		Interface: idx,
		LinkAddr:  la,
		Static:    true,
	}, nil
}
