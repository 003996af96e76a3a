// smppsim daemon -- SMPP SMSC simulator for ESME load and integration testing.
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
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/smppsim/internal/config"
	simmetrics "github.com/dantte-lp/smppsim/internal/metrics"
	"github.com/dantte-lp/smppsim/internal/smpp"
	appversion "github.com/dantte-lp/smppsim/internal/version"
	"github.com/dantte-lp/smppsim/internal/web"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 500ms of execution traces for debugging protocol issues.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := config.Load(*configPath)
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

	logger.Info("smppsim starting",
		slog.String("version", appversion.Version),
		slog.String("smpp_addr", cfg.SMPP.Addr()),
		slog.String("smpp_version", cfg.SMPP.Version),
		slog.String("api_addr", cfg.Server.Addr()),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Start flight recorder for post-mortem debugging.
	fr := startFlightRecorder(logger)

	// 5. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := simmetrics.NewCollector(reg)

	// 6. Run all services.
	if err := runServices(cfg, reg, collector, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("smppsim exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("smppsim stopped")
	return 0
}

// runServices wires the SMPP server, lifecycle engine, MO service, admin
// API, and metrics endpoint into an errgroup with a signal-aware context
// for graceful shutdown.
func runServices(
	cfg *config.Config,
	reg *prometheus.Registry,
	collector *simmetrics.Collector,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	registry := smpp.NewRegistry(logger, smpp.WithRegistryMetrics(collector))
	queue := smpp.NewMessageQueue()

	smppSrv := smpp.NewServer(smppServerConfig(cfg), registry, queue, logger,
		smpp.WithServerMetrics(collector))

	engineCfg, err := engineConfig(cfg.Lifecycle)
	if err != nil {
		return fmt.Errorf("build lifecycle config: %w", err)
	}
	engine := smpp.NewEngine(engineCfg, registry, queue, logger,
		smpp.WithEngineMetrics(collector))

	mo := smpp.NewMoService(smpp.MoConfig{
		Enabled:       cfg.MoService.Enabled,
		FilePath:      cfg.MoService.FilePath,
		RatePerMinute: cfg.MoService.DeliveryMessagesPerMinute,
	}, registry, logger, smpp.WithMoMetrics(collector))

	apiSrv := newAPIServer(cfg, registry, queue, mo, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	// errgroup with signal-aware context.
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return smppSrv.Run(gCtx)
	})
	g.Go(func() error {
		return engine.Run(gCtx)
	})
	g.Go(func() error {
		return mo.Run(gCtx)
	})

	startHTTPServers(gCtx, g, cfg, apiSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, fr, apiSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run services: %w", err)
	}
	return nil
}

// smppServerConfig maps the loaded configuration onto the SMPP listener
// settings.
func smppServerConfig(cfg *config.Config) smpp.ServerConfig {
	accounts := make([]smpp.Credentials, 0, len(cfg.SMPP.Accounts))
	for _, a := range cfg.SMPP.Accounts {
		accounts = append(accounts, smpp.Credentials{
			SystemID: a.SystemID,
			Password: a.Password,
		})
	}

	return smpp.ServerConfig{
		Addr:        cfg.SMPP.Addr(),
		Mode:        smpp.ParseMode(cfg.SMPP.Version),
		MaxSessions: cfg.SMPP.MaxSessions,
		Default: smpp.Credentials{
			SystemID: cfg.SMPP.SystemID,
			Password: cfg.SMPP.Password,
		},
		Accounts: accounts,
	}
}

// engineConfig maps the lifecycle configuration onto engine settings,
// parsing the optional receipt TLV spec.
func engineConfig(lc config.LifecycleConfig) (smpp.EngineConfig, error) {
	ec := smpp.EngineConfig{
		CheckInterval:        time.Duration(lc.MessageStateCheckFrequencyMs) * time.Millisecond,
		MaxTimeEnroute:       time.Duration(lc.MaxTimeEnrouteMs) * time.Millisecond,
		DiscardRecentAfter:   time.Duration(lc.DiscardFromQueueAfterMs) * time.Millisecond,
		PercentDelivered:     lc.PercentDelivered,
		PercentUndeliverable: lc.PercentUndeliverable,
		PercentAccepted:      lc.PercentAccepted,
		PercentRejected:      lc.PercentRejected,
	}

	if lc.DeliveryReceiptTLV != "" {
		tag, value, err := config.ParseTLVSpec(lc.DeliveryReceiptTLV)
		if err != nil {
			return ec, fmt.Errorf("parse delivery_receipt_tlv: %w", err)
		}
		ec.ReceiptTLV = &smpp.TLV{Tag: tag, Value: value}
	}

	return ec, nil
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
		logger.Info("admin api listening", slog.String("addr", cfg.Server.Addr()))
		return listenAndServe(ctx, &lc, apiSrv, cfg.Server.Addr())
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
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
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

	// Send keepalive at half the watchdog interval.
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
// SIGHUP Reload — dynamic log level
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// On reload, the log level is updated dynamically via the shared LevelVar.
// Other settings require a restart; the running listeners keep their
// original configuration.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path and updates
// the dynamic log level. Errors during reload are logged but do not stop
// the daemon -- the previous configuration remains in effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := config.Load(configPath)
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
}

// -------------------------------------------------------------------------
// Graceful Shutdown — stop servers
// -------------------------------------------------------------------------

// gracefulShutdown performs an orderly shutdown: signals systemd, stops the
// flight recorder, then drains the HTTP servers. The SMPP server, lifecycle
// engine, and MO service stop on their own when the group context cancels.
//
// The parent context is already cancelled when this function is called.
// A fresh timeout context is created internally for server drain.
func gracefulShutdown(
	ctx context.Context,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	// Derive a fresh shutdown context from the parent (which is cancelled).
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
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts the Go 1.26 FlightRecorder
// for post-mortem debugging. The recorder maintains a rolling window of
// execution trace data that can be dumped on demand.
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

// newAPIServer creates the HTTP server for the admin API.
func newAPIServer(
	cfg *config.Config,
	registry *smpp.Registry,
	queue *smpp.MessageQueue,
	mo *smpp.MoService,
	logger *slog.Logger,
) *http.Server {
	handler := web.NewHandler(registry, queue, mo, logger)
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
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
