//go:build linux

// gond daemon -- IPv6 Neighbor Discovery host stack (RFC 4861).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"sync"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	ndapi "github.com/dantte-lp/gond/internal/api"
	"github.com/dantte-lp/gond/internal/config"
	ndmetrics "github.com/dantte-lp/gond/internal/metrics"
	"github.com/dantte-lp/gond/internal/ndp"
	"github.com/dantte-lp/gond/internal/netio"
	"github.com/dantte-lp/gond/internal/route"
	"github.com/dantte-lp/gond/internal/server"
	appversion "github.com/dantte-lp/gond/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Covers several fast ticks so a failed resolution can be traced.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("gond"))
		return 0
	}

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("gond starting",
		slog.String("version", appversion.Version),
		slog.String("api_addr", cfg.API.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("interfaces", len(cfg.Interfaces)),
	)

	// 4. Start flight recorder for post-mortem debugging.
	fr := startFlightRecorder(logger)

	// 5. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := ndmetrics.NewCollector(reg)

	// 6. Create the Neighbor Discovery stack with metrics and the
	// destination cache wired in.
	stack, err := ndp.New(cfg.StackConfig(), logger,
		ndp.WithMetrics(collector),
		ndp.WithDestinationCache(route.New(logger, cfg.ND.DestinationCacheSize)),
		ndp.WithAddressChangeFunc(logAddressChange(logger)),
		ndp.WithRAFlagFunc(logRAFlags(logger)),
	)
	if err != nil {
		logger.Error("failed to create neighbor discovery stack",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 7. Run.
	if err := runDaemon(cfg, stack, collector, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("gond exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("gond stopped")
	return 0
}

// runDaemon opens the interfaces, enables the stack and runs the receive
// loop, the periodic driver, the interface monitor and the HTTP servers
// in an errgroup with a signal-aware context for graceful shutdown.
func runDaemon(
	cfg *config.Config,
	stack *ndp.Stack,
	collector *ndmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	// errgroup with signal-aware context.
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	codec := netio.NewCodec()
	sender := netio.NewSender(codec, logger)

	links, err := openInterfaces(ctx, cfg.Interfaces, stack, sender, logger)
	if err != nil {
		return fmt.Errorf("open interfaces: %w", err)
	}
	defer links.close(logger)

	ftx, err := netio.NewFrameTransmitter(logger)
	if err != nil {
		return fmt.Errorf("open frame transmitter: %w", err)
	}
	defer closeTransmitter(ftx, logger)

	if err := stack.Enable(ctx, ndp.Handlers{
		Solicitor:   sender,
		LinkLayer:   sender,
		Transmitter: ftx,
	}); err != nil {
		return fmt.Errorf("enable stack: %w", err)
	}

	// Static tables from config. Reconciled again on SIGHUP.
	rec := &staticReconciler{stack: stack, ifaces: links.indexes(), logger: logger}
	rec.apply(ctx, cfg)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	apiSrv := newAPIServer(cfg.API, stack, logger)

	g, gCtx := errgroup.WithContext(ctx)

	// Inbound Router and Neighbor Advertisements.
	recv := netio.NewReceiver(stack, codec, logger,
		netio.WithRateLimit(cfg.ND.RxRateLimit, cfg.ND.RxBurst),
		netio.WithRxMetrics(collector),
	)
	g.Go(func() error {
		return recv.Run(gCtx, links.listeners()...)
	})

	// Fast and slow ticks.
	driver := ndp.NewStackDriver(stack, logger)
	g.Go(func() error {
		return driver.Run(gCtx)
	})

	startInterfaceMonitor(gCtx, g, stack, links.names(), logger)
	startHTTPServers(gCtx, g, cfg, apiSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, rec, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, stack, links, logger, fr, apiSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// startHTTPServers registers the admin API and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	apiSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin API listening", slog.String("addr", cfg.API.Addr))
		return listenAndServe(ctx, &lc, apiSrv, cfg.API.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	rec *staticReconciler,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, rec, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Interfaces: raw sockets, listeners and link state
// -------------------------------------------------------------------------

// ifaceLink is one interface Neighbor Discovery runs on.
type ifaceLink struct {
	ifc ndp.Interface
	ln  *netio.Listener
}

type ifaceLinks []ifaceLink

// openInterfaces resolves each configured interface, opens its ICMPv6
// socket, registers it with the sender and adds it to the stack together
// with its manually configured addresses.
func openInterfaces(
	ctx context.Context,
	ifaces []config.InterfaceConfig,
	stack *ndp.Stack,
	sender *netio.Sender,
	logger *slog.Logger,
) (ifaceLinks, error) {
	var links ifaceLinks

	for _, ic := range ifaces {
		link, err := openInterface(ctx, ic, stack, sender)
		if err != nil {
			// Close already-opened sockets on failure.
			links.close(logger)
			return nil, fmt.Errorf("interface %s: %w", ic.Name, err)
		}

		logger.Info("interface opened",
			slog.String("interface", ic.Name),
			slog.Int("ifindex", link.ifc.Index),
			slog.String("link_addr", link.ifc.LinkAddr.String()),
			slog.Bool("autoconf", ic.Autoconf),
		)
		links = append(links, link)
	}

	return links, nil
}

func openInterface(ctx context.Context, ic config.InterfaceConfig, stack *ndp.Stack, sender *netio.Sender) (ifaceLink, error) {
	ifc, err := netio.LookupInterface(ic.Name)
	if err != nil {
		return ifaceLink{}, fmt.Errorf("lookup: %w", err)
	}
	if ic.LinkAddr != "" {
		la, err := ndp.ParseLinkAddr(ic.LinkAddr)
		if err != nil {
			return ifaceLink{}, fmt.Errorf("link_addr: %w", err)
		}
		ifc.LinkAddr = la
	}
	ifc.Autoconf = ic.Autoconf

	conn, err := netio.NewLinuxPacketConn(ctx, ic.Name)
	if err != nil {
		return ifaceLink{}, fmt.Errorf("open socket: %w", err)
	}

	if err := stack.AddInterface(ifc); err != nil {
		_ = conn.Close()
		return ifaceLink{}, fmt.Errorf("add to stack: %w", err)
	}

	for _, a := range ic.Addresses {
		p, err := config.ParsePrefix(a)
		if err != nil {
			_ = conn.Close()
			return ifaceLink{}, err //nolint:wrapcheck // config errors already name the value.
		}
		if err := stack.AddAddress(ctx, ifc.Index, p, ndp.MethodManual); err != nil {
			_ = conn.Close()
			return ifaceLink{}, fmt.Errorf("address %s: %w", p, err)
		}
	}

	sender.Register(conn, ifc.LinkAddr)
	return ifaceLink{ifc: ifc, ln: netio.NewListener(conn)}, nil
}

func (l ifaceLinks) listeners() []*netio.Listener {
	out := make([]*netio.Listener, 0, len(l))
	for _, link := range l {
		out = append(out, link.ln)
	}
	return out
}

func (l ifaceLinks) names() []string {
	out := make([]string, 0, len(l))
	for _, link := range l {
		out = append(out, link.ifc.Name)
	}
	return out
}

func (l ifaceLinks) indexes() map[string]int {
	out := make(map[string]int, len(l))
	for _, link := range l {
		out[link.ifc.Name] = link.ifc.Index
	}
	return out
}

// close closes every socket, logging any errors. Closing an already
// closed socket is harmless, so close may run both at shutdown and on
// the deferred path.
func (l ifaceLinks) close(logger *slog.Logger) {
	for _, link := range l {
		if err := link.ln.Close(); err != nil {
			logger.Debug("failed to close interface socket",
				slog.String("interface", link.ifc.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func closeTransmitter(ftx *netio.FrameTransmitter, logger *slog.Logger) {
	if err := ftx.Close(); err != nil {
		logger.Warn("failed to close frame transmitter",
			slog.String("error", err.Error()),
		)
	}
}

// startInterfaceMonitor feeds netlink link state into the stack: a link
// coming up restarts router solicitation, a link going down stops it.
func startInterfaceMonitor(
	ctx context.Context,
	g *errgroup.Group,
	stack *ndp.Stack,
	names []string,
	logger *slog.Logger,
) {
	if len(names) == 0 {
		return
	}

	mon := netio.NewNetlinkInterfaceMonitor(logger, names...)

	g.Go(func() error {
		if err := mon.Run(ctx); err != nil {
			// Link state is an optimization; ND keeps running without it.
			logger.Warn("interface monitor stopped",
				slog.String("error", err.Error()),
			)
		}
		return nil
	})

	g.Go(func() error {
		for ev := range mon.Events() {
			if err := stack.SetInterfaceUp(ctx, ev.IfIndex, ev.Up); err != nil {
				logger.Debug("ignoring link event",
					slog.String("interface", ev.IfName),
					slog.String("error", err.Error()),
				)
				continue
			}
			logger.Info("link state changed",
				slog.String("interface", ev.IfName),
				slog.Bool("up", ev.Up),
			)
		}
		return nil
	})
}

// logAddressChange reports address lifecycle transitions.
func logAddressChange(logger *slog.Logger) ndp.AddressChangeFunc {
	return func(c ndp.AddressChange) {
		logger.Info("address state changed",
			slog.String("addr", c.Prefix.String()),
			slog.Int("iface", c.Interface),
			slog.String("method", c.Method.String()),
			slog.String("old_state", c.OldState.String()),
			slog.String("new_state", c.State.String()),
		)
	}
}

// Router Advertisement M and O flags (RFC 4861 Section 4.2).
const (
	raFlagManaged = 0x80
	raFlagOther   = 0x40
)

// logRAFlags reports the managed/other configuration flags so that an
// external DHCPv6 client can be started. gond has no DHCPv6 client.
func logRAFlags(logger *slog.Logger) ndp.RAFlagFunc {
	var (
		mu   sync.Mutex
		last = make(map[int]uint8)
	)
	return func(iface int, flags uint8) {
		flags &= raFlagManaged | raFlagOther

		mu.Lock()
		prev, seen := last[iface]
		last[iface] = flags
		mu.Unlock()

		if seen && prev == flags {
			return
		}
		logger.Info("router advertisement configuration flags",
			slog.Int("iface", iface),
			slog.Bool("managed", flags&raFlagManaged != 0),
			slog.Bool("other", flags&raFlagOther != 0),
		)
	}
}

// -------------------------------------------------------------------------
// Systemd Integration: sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon
// is beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd documentation.
// If watchdog is not configured, the goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload: log level + static tables
// -------------------------------------------------------------------------

// staticReconciler owns the table entries created from the configuration.
type staticReconciler struct {
	mu     sync.Mutex
	stack  *ndp.Stack
	ifaces map[string]int
	set    *staticSet
	logger *slog.Logger
}

func (r *staticReconciler) apply(ctx context.Context, cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, applied, removed := reconcileStatic(ctx, r.stack, cfg, r.ifaces, r.set, r.logger)
	r.set = next

	r.logger.Info("static table reconciliation complete",
		slog.Int("applied", applied),
		slog.Int("removed", removed),
	)
}

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// On reload, the log level is updated dynamically via the shared LevelVar
// and the static neighbors, routers and prefixes are reconciled. Table
// sizes, timers and the interface set are fixed at startup.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	rec *staticReconciler,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(ctx, configPath, logLevel, rec, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path, updates
// the dynamic log level, and reconciles the static tables.
// Errors during reload are logged but do not stop the daemon -- the
// previous configuration remains in effect.
func reloadConfig(
	ctx context.Context,
	configPath string,
	logLevel *slog.LevelVar,
	rec *staticReconciler,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	rec.apply(ctx, newCfg)
}

// -------------------------------------------------------------------------
// Graceful Shutdown: disable stack + stop servers
// -------------------------------------------------------------------------

// gracefulShutdown performs an orderly shutdown: signals systemd, disables
// the stack so no further solicitations are sent, closes the interface
// sockets to unblock the receive loop, stops the flight recorder, then
// shuts down HTTP servers.
//
// The parent context is already cancelled when this function is called.
// A fresh timeout context is created internally for server drain.
func gracefulShutdown(
	ctx context.Context,
	stack *ndp.Stack,
	links ifaceLinks,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	stack.Disable()
	links.close(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	// context.WithoutCancel detaches from the parent's cancellation so we
	// can enforce our own drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder: Go 1.26 runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts the Go 1.26 FlightRecorder.
// The recorder maintains a rolling window of execution trace data that
// can be dumped on demand.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAPIServer creates an HTTP server for the ConnectRPC admin API.
// The handler is wrapped with h2c to support HTTP/2 without TLS, which
// gRPC clients need over plaintext. Includes standard gRPC health
// checking (grpc.health.v1).
func newAPIServer(cfg config.APIConfig, stack *ndp.Stack, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	path, handler := server.New(stack, logger,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)
	mux.Handle(path, handler)

	// Reports SERVING for the overall server and the neighbor service.
	checker := grpchealth.NewStaticChecker(
		grpchealth.HealthV1ServiceName,
		ndapi.ServiceName,
	)
	mux.Handle(grpchealth.NewHandler(checker))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
