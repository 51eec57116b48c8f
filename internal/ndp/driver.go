package ndp

import (
	"context"
	"log/slog"
	"time"
)

// Ticker is the periodic work a Driver invokes. *Stack implements it.
type Ticker interface {
	FastTick(ctx context.Context)
	SlowTick(ctx context.Context)
}

// Driver invokes FastTick and SlowTick on their configured periods. It
// replaces the two timer call-outs of the IP thread: both ticks run on the
// Driver goroutine, so they never overlap each other.
type Driver struct {
	target Ticker
	fast   time.Duration
	slow   time.Duration
	logger *slog.Logger
}

// NewDriver creates a Driver for target with the given tick periods.
// Non-positive periods fall back to DefaultFastTick and DefaultSlowTick.
func NewDriver(target Ticker, fast, slow time.Duration, logger *slog.Logger) *Driver {
	if fast <= 0 {
		fast = DefaultFastTick
	}
	if slow <= 0 {
		slow = DefaultSlowTick
	}
	return &Driver{
		target: target,
		fast:   fast,
		slow:   slow,
		logger: logger.With(slog.String("component", "ndp.driver")),
	}
}

// NewStackDriver creates a Driver using the tick periods of the Stack's
// configuration.
func NewStackDriver(s *Stack, logger *slog.Logger) *Driver {
	cfg := s.Config()
	return NewDriver(s, cfg.FastTick, cfg.SlowTick, logger)
}

// Run ticks until ctx is cancelled. It always returns nil so it can be
// used directly as an errgroup function.
func (d *Driver) Run(ctx context.Context) error {
	fast := time.NewTicker(d.fast)
	defer fast.Stop()

	slow := time.NewTicker(d.slow)
	defer slow.Stop()

	d.logger.Info("periodic driver started",
		slog.Duration("fast_tick", d.fast),
		slog.Duration("slow_tick", d.slow),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("periodic driver stopped")
			return nil
		case <-fast.C:
			d.target.FastTick(ctx)
		case <-slow.C:
			d.target.SlowTick(ctx)
		}
	}
}
