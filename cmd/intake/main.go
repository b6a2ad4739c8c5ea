package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"packet-intake/api"
	"packet-intake/internal/config"
	"packet-intake/internal/logger"
	"packet-intake/internal/metrics"
	"packet-intake/internal/observability"
	"packet-intake/internal/platform"
	"packet-intake/internal/presets"
	"packet-intake/pkg/nic"
	"packet-intake/pkg/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	preset := flag.String("preset", "", "tuning preset to apply (overrides presets.active)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err == nil {
		cfg, err = applyPreset(cfg, *preset)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithConfig(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	}, os.Stderr)
	log.Info("config loaded", map[string]any{
		"path":   *configPath,
		"driver": cfg.NIC.Driver,
		"preset": cfg.Presets.Active,
	})

	// Installed before any worker starts so an early interrupt is not lost.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := build(cfg, log, reg)
	if err != nil {
		log.Error("initialisation failed", map[string]any{"error": err.Error()})
		_ = log.Sync()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.serve(ctx, cfg, reg)

	if err := app.pipeline.Start(); err != nil {
		log.Error("pipeline start failed", map[string]any{"error": err.Error()})
		_ = log.Sync()
		os.Exit(1)
	}

	coord := pipeline.NewCoordinator(app.pipeline, pipeline.CoordinatorOptions{
		Interval: cfg.Pipeline.StatsInterval,
		Out:      os.Stdout,
		OnReport: app.onReport,
		Log:      log,
		Exit: func(code int) {
			_ = log.Sync()
			os.Exit(code)
		},
	})
	coord.Run(ctx, signals)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// applyPreset overlays the named preset, or presets.active when name is
// empty.
func applyPreset(cfg *config.Config, name string) (*config.Config, error) {
	if name == "" {
		name = cfg.Presets.Active
	}
	if name == "" {
		return cfg, nil
	}
	store, err := presets.LoadStore(cfg.Presets.Dir)
	if err != nil {
		return nil, err
	}
	preset, ok := store.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	next, _, err := presets.ApplyPreset(cfg, preset)
	if err != nil {
		return nil, err
	}
	next.Presets.Active = name
	return next, nil
}

type app struct {
	log      *logger.Logger
	nic      nic.NIC
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	monitor  *observability.Monitor
	traces   *observability.Traces
}

// build opens the NIC and wires the pipeline with its report consumers.
// Nothing is started.
func build(cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*app, error) {
	dev, err := platform.OpenNIC(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open nic: %w", err)
	}

	opts := cfg.PipelineOptions()
	opts.Pin = platform.PinToCore
	opts.Log = log
	p, err := pipeline.New(dev, opts)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	a := &app{
		log:      log,
		nic:      dev,
		pipeline: p,
		metrics:  metrics.NewWithRegistry(reg, p),
		traces:   observability.NewTraces(cfg.Alerts.HistoryLimit),
	}
	a.monitor = observability.NewMonitor(observability.AlertsConfig{
		DropsThreshold:  cfg.Alerts.DropsThreshold,
		MissedThreshold: cfg.Alerts.MissedThreshold,
		ErrorsThreshold: cfg.Alerts.ErrorsThreshold,
	}, cfg.Alerts.HistoryLimit, log, func(alert observability.Alert) {
		a.metrics.IncAlert(string(alert.Type))
	})
	return a, nil
}

func (a *app) onReport(rep pipeline.Report) {
	a.metrics.ObserveReport(rep)
	a.monitor.Observe(rep)
}

// serve starts the optional network surfaces. Each is off unless its
// address is configured.
func (a *app) serve(ctx context.Context, cfg *config.Config, g prometheus.Gatherer) {
	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics, g); err != nil {
				a.log.Error("metrics server error", map[string]any{"err": err.Error()})
			}
		}()
	}
	metrics.StartRemoteWrite(ctx, cfg.MetricsExport, a.metrics, a.log)

	if cfg.API.Address == "" {
		return
	}
	router, err := a.router(cfg)
	if err != nil {
		a.log.Error("api disabled", map[string]any{"err": err.Error()})
		return
	}
	go func() {
		if err := router.Run(cfg.API.Address); err != nil {
			a.log.Error("api server error", map[string]any{"err": err.Error()})
		}
	}()
}

func (a *app) router(cfg *config.Config) (*gin.Engine, error) {
	token, err := config.ResolveSecret(cfg.API.Token)
	if err != nil {
		return nil, fmt.Errorf("api token: %w", err)
	}
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := &api.Handlers{
		Pipeline: a.pipeline,
		Monitor:  a.monitor,
		Traces:   a.traces,
	}
	return api.NewRouter(handlers, api.RouterOptions{
		Token: token,
		Pprof: cfg.API.Pprof,
		Log:   a.log,
	}), nil
}
