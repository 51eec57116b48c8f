package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dantte-lp/gond/internal/ndp"
)

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// Handler consumes decoded advertisements. *ndp.Stack satisfies it.
type Handler interface {
	ProcessRouterAdvert(ctx context.Context, ra ndp.RouterAdvert) error
	ProcessNeighborAdvert(ctx context.Context, na ndp.NeighborAdvert) error
}

// RxMetrics counts received and dropped ND messages. The metrics
// collector satisfies it.
type RxMetrics interface {
	IncPacketsReceived(msgType string)
	IncPacketsDropped(reason string)
}

// Drop reasons reported to RxMetrics.
const (
	DropHopLimit    = "hop_limit"
	DropMalformed   = "malformed"
	DropUnsupported = "unsupported"
	DropRateLimited = "rate_limited"
	DropRejected    = "rejected"
)

type noopRxMetrics struct{}

func (noopRxMetrics) IncPacketsReceived(string) {}
func (noopRxMetrics) IncPacketsDropped(string)  {}

// Receiver reads ND messages from one or more Listeners, decodes them and
// hands them to a Handler.
//
// The Receiver handles:
//   - Buffer management via the packet pool
//   - Decoding via Codec
//   - Per-listener inbound rate limiting
//   - Context-aware graceful shutdown
type Receiver struct {
	handler Handler
	codec   *Codec
	limit   rate.Limit
	burst   int
	metrics RxMetrics
	logger  *slog.Logger
}

// ReceiverOption configures optional Receiver parameters.
type ReceiverOption func(*Receiver)

// WithRateLimit bounds the messages accepted per second on each listener.
// A non-positive perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) ReceiverOption {
	return func(r *Receiver) {
		if perSecond <= 0 {
			r.limit = rate.Inf
			return
		}
		r.limit = rate.Limit(perSecond)
		r.burst = max(burst, 1)
	}
}

// WithRxMetrics sets the receive metrics sink. A nil sink is ignored.
func WithRxMetrics(m RxMetrics) ReceiverOption {
	return func(r *Receiver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewReceiver creates a Receiver that routes messages to handler.
func NewReceiver(handler Handler, codec *Codec, logger *slog.Logger, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		handler: handler,
		codec:   codec,
		limit:   rate.Inf,
		metrics: noopRxMetrics{},
		logger:  logger.With(slog.String("component", "netio.receiver")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads from all listeners concurrently until ctx is cancelled. Each
// listener gets its own goroutine and its own token bucket. Run blocks
// until every listener goroutine returns; the caller closes the
// listeners after cancelling ctx to unblock pending reads.
//
// Errors from individual reads are logged but do not stop the receiver.
// A closed socket ends that listener's loop.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	var wg sync.WaitGroup
	for _, ln := range listeners {
		wg.Go(func() {
			r.recvLoop(ctx, ln, rate.NewLimiter(r.limit, r.burst))
		})
	}
	wg.Wait()

	return nil
}

// recvLoop reads messages from a single Listener until ctx is cancelled
// or the socket is closed.
func (r *Receiver) recvLoop(ctx context.Context, ln *Listener, lim *rate.Limiter) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(ctx, ln, lim); err != nil {
			// Context cancellation during read is expected at shutdown.
			if ctx.Err() != nil || errors.Is(err, ErrSocketClosed) || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("recv error",
				slog.Int("ifindex", ln.IfIndex()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// recvOne performs a single receive-decode-dispatch cycle. The buffer is
// returned to the pool before the handler runs because decoded messages
// do not alias it.
func (r *Receiver) recvOne(ctx context.Context, ln *Listener, lim *rate.Limiter) error {
	raw, meta, dropped, err := ln.Recv(ctx)
	for range dropped {
		r.metrics.IncPacketsDropped(DropHopLimit)
	}
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	if !lim.Allow() {
		ln.Release(raw)
		r.metrics.IncPacketsDropped(DropRateLimited)
		return nil
	}

	msg, err := r.codec.Decode(raw, meta)
	ln.Release(raw)
	if err != nil {
		reason := DropMalformed
		if errors.Is(err, ErrUnsupportedType) {
			reason = DropUnsupported
		}
		r.metrics.IncPacketsDropped(reason)
		r.logger.Debug("invalid ND message",
			slog.String("src", meta.SrcAddr.String()),
			slog.String("error", err.Error()),
		)
		return nil // Drop invalid messages silently per RFC 4861 Section 6.1.2.
	}

	r.metrics.IncPacketsReceived(msg.Kind.String())

	switch msg.Kind {
	case KindRouterAdvert:
		err = r.handler.ProcessRouterAdvert(ctx, msg.RouterAdvert)
	case KindNeighborAdvert:
		err = r.handler.ProcessNeighborAdvert(ctx, msg.NeighborAdvert)
	}
	if err != nil {
		r.metrics.IncPacketsDropped(DropRejected)
		r.logger.Debug("advertisement rejected",
			slog.String("type", msg.Kind.String()),
			slog.String("src", meta.SrcAddr.String()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
