// Package app assembles the dispatch service from configuration: store,
// technician directory, notifier, metrics sinks, engine and HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nroult/fieldops/api/interventions"
	"github.com/nroult/fieldops/config"
	"github.com/nroult/fieldops/core/directory"
	"github.com/nroult/fieldops/core/dispatch"
	coremetrics "github.com/nroult/fieldops/core/metrics"
	corenotify "github.com/nroult/fieldops/core/notify"
	corestore "github.com/nroult/fieldops/core/store"
	filedirectory "github.com/nroult/fieldops/infra/directory"
	"github.com/nroult/fieldops/infra/logger"
	"github.com/nroult/fieldops/infra/metrics"
	"github.com/nroult/fieldops/infra/notify"
	"github.com/nroult/fieldops/infra/rating"
	sqlitestore "github.com/nroult/fieldops/infra/store"
	"github.com/nroult/fieldops/internal/eventbus"
)

// sweepInterval is how often the background poller expires stale offers.
const sweepInterval = 30 * time.Second

// storeWorkload reads a technician's live job count from the dispatch store.
type storeWorkload struct {
	st corestore.InterventionStore
}

func (w storeWorkload) ActiveJobCount(ctx context.Context, technicianID string) (int, error) {
	return w.st.CountActiveJobs(ctx, technicianID)
}

// Service runs the dispatch engine, its HTTP API and the timeout poller.
type Service struct {
	Engine *dispatch.Engine

	cfg     *config.Config
	bus     eventbus.EventBus
	log     logger.Logger
	handler http.Handler
	closers []func() error
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{cfg: cfg, log: logger.New("service")}

	var st corestore.Store
	switch cfg.Store.Backend {
	case "sqlite":
		sq, err := sqlitestore.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		svc.closers = append(svc.closers, sq.Close)
		st = sq
	default:
		st = corestore.NewMemoryStore()
	}

	var notifier corenotify.Notifier = corenotify.NopNotifier{}
	if cfg.MQTT.Broker != "" {
		mq, err := notify.NewMQTTNotifier(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		svc.closers = append(svc.closers, func() error { mq.Disconnect(); return nil })
		notifier = mq
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.MetricsSink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = metrics.NewMultiSink(sinks...)
	}

	dir, err := filedirectory.NewFileDirectory(cfg.Directory.Path, time.Duration(cfg.Directory.ReloadSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("technician directory: %w", err)
	}

	var ratings directory.RatingSource = directory.StaticRatings{}
	if cfg.Rating.Enabled {
		rs, err := rating.NewSQLiteRatings(cfg.Rating.Path)
		if err != nil {
			return nil, fmt.Errorf("rating source: %w", err)
		}
		svc.closers = append(svc.closers, rs.Close)
		ratings = rs
	}

	filter, err := dispatch.NewCandidateFilter(dir, storeWorkload{st}, ratings, cfg.Dispatch.MaxActiveJobs, svc.log)
	if err != nil {
		return nil, fmt.Errorf("candidate filter: %w", err)
	}

	svc.bus = eventbus.New()
	engine, err := dispatch.NewEngine(st, filter, dispatch.NewScorer(cfg.Dispatch.SkillAliases), notifier, sink, svc.bus, svc.log, cfg.Dispatch)
	if err != nil {
		return nil, fmt.Errorf("dispatch engine: %w", err)
	}
	svc.Engine = engine
	svc.handler = interventions.NewHandler(engine)
	return svc, nil
}

// Run starts the HTTP API, the Prometheus endpoint and the timeout poller,
// blocking until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	go s.sweepLoop(ctx)

	srv := &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.log.Infof("dispatch API listening on %s", s.cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sweepLoop periodically expires offers whose response window has elapsed
// and escalates the affected interventions.
func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Engine.SweepTimeouts(ctx)
			if err != nil {
				s.log.Errorf("timeout sweep: %v", err)
				continue
			}
			if n > 0 {
				s.log.Infof("timeout sweep expired %d offers", n)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
