package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/intervalflow/internal/config"
	"github.com/vnykmshr/intervalflow/pkg/metrics"
	"github.com/vnykmshr/intervalflow/pkg/monitor"
	"github.com/vnykmshr/intervalflow/pkg/scheduling/interval"
)

type daemon struct {
	cfg *config.Config
	log zerolog.Logger

	registry *prometheus.Registry
	sched    *interval.Scheduler
	manager  *monitor.Manager
	redis    *redis.Client
	server   *http.Server
}

func newDaemon(cfg *config.Config, logger *zerolog.Logger) (*daemon, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// An empty metricsAddr turns metrics off entirely.
	m := metrics.Config{Enabled: cfg.MetricsAddr != "", Registry: reg}.Build()

	sched, err := interval.NewWithConfig(interval.Config{
		Name:       cfg.Name,
		MaxWorkers: cfg.MaxWorkers,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	d := &daemon{cfg: cfg, log: *logger, registry: reg, sched: sched}

	var sink monitor.Sink = monitor.NewLogSink(logger)
	if cfg.Redis.Enabled() {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sink = monitor.NewRedisSink(d.redis, cfg.Redis.Channel)
	}

	d.manager, err = monitor.NewManager(monitor.ManagerConfig{
		Name:      cfg.Name,
		Scheduler: sched,
		Sink:      sink,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		<-sched.Shutdown()
		return nil, err
	}
	if err := d.manager.Register(monitor.RuntimeType, monitor.NewRuntimeCollector); err != nil {
		<-sched.Shutdown()
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", d.handleHealth)
	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	return d, nil
}

// run serves metrics on ln, starts the configured monitors and follows the
// config file at path until ctx is done, then shuts everything down. A nil
// ln runs without the HTTP endpoints.
func (d *daemon) run(ctx context.Context, path string, ln net.Listener) error {
	serveErr := make(chan error, 1)
	if ln != nil {
		go func() {
			if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
		d.log.Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
	}

	if d.redis != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := d.redis.Ping(pctx).Err(); err != nil {
			d.log.Warn().Err(err).Str("addr", d.cfg.Redis.Addr).Msg("redis unreachable, datapoints will fail until it recovers")
		}
		cancel()
	}

	if err := d.manager.Apply(d.cfg.Monitors); err != nil {
		d.log.Error().Err(err).Msg("some monitors failed to start")
	}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := config.Watch(ctx, path, &d.log, d.reload); err != nil {
			d.log.Warn().Err(err).Msg("config hot reload disabled")
		}
	}()

	var errs []error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		errs = append(errs, fmt.Errorf("metrics server: %w", err))
	}

	d.log.Info().Msg("shutting down")
	errs = append(errs, d.shutdown())
	<-watchDone
	return errors.Join(errs...)
}

func (d *daemon) shutdown() error {
	d.manager.Close()

	grace, err := d.cfg.ShutdownGraceDuration()
	if err != nil {
		return err
	}

	var errs []error
	select {
	case <-d.sched.Shutdown():
	case <-time.After(grace):
		errs = append(errs, fmt.Errorf("callbacks still running after %s", grace))
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reload applies a changed config file. Only monitors and the log level
// change at runtime.
func (d *daemon) reload(cfg *config.Config) {
	if cfg.Name != d.cfg.Name || cfg.MaxWorkers != d.cfg.MaxWorkers ||
		cfg.MetricsAddr != d.cfg.MetricsAddr || cfg.Redis != d.cfg.Redis {
		d.log.Warn().Msg("restart required to apply changes outside monitors and logLevel")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if err := d.manager.Apply(cfg.Monitors); err != nil {
		d.log.Error().Err(err).Msg("config reload incomplete")
	}
}

type healthResponse struct {
	Status   string    `json:"status"`
	Monitors int       `json:"monitors"`
	Queued   int       `json:"queued"`
	Held     int       `json:"held"`
	Workers  int       `json:"workers"`
	NextFire time.Time `json:"nextFire,omitempty"`
}

func (d *daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := d.sched.Stats()
	resp := healthResponse{
		Status:   "ok",
		Monitors: len(d.manager.Active()),
		Queued:   stats.Queued,
		Held:     stats.Held,
		Workers:  stats.LiveWorkers,
		NextFire: stats.NextFire,
	}

	w.Header().Set("Content-Type", "application/json")
	if stats.Closed {
		resp.Status = "stopping"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
