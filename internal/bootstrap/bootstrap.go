package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/extraction-tracker/internal/config"
	"github.com/kirillkom/extraction-tracker/internal/core/ports"
	"github.com/kirillkom/extraction-tracker/internal/core/tracker"
	"github.com/kirillkom/extraction-tracker/internal/infrastructure/backend"
	"github.com/kirillkom/extraction-tracker/internal/infrastructure/notify"
	"github.com/kirillkom/extraction-tracker/internal/infrastructure/resilience"
	"github.com/kirillkom/extraction-tracker/internal/infrastructure/stream/natsstream"
	"github.com/kirillkom/extraction-tracker/internal/infrastructure/stream/sse"
	"github.com/kirillkom/extraction-tracker/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Tracker *tracker.Tracker
	Metrics *metrics.TrackerMetrics

	sweeper *tracker.Sweeper
	closeFn func()
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	endpoints, err := backend.NewEndpoints(backend.Mode(cfg.BackendMode), cfg.BackendBaseURL, cfg.GatewayBaseURL)
	if err != nil {
		return nil, fmt.Errorf("resolve backend endpoints: %w", err)
	}

	var source ports.EventSource
	var closeSource func()
	switch cfg.StreamTransport {
	case "sse":
		source = sse.New(endpoints.StreamURL, logger)
	case "nats":
		natsSource, err := natsstream.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, natsstream.Options{}, logger)
		if err != nil {
			return nil, fmt.Errorf("init nats event source: %w", err)
		}
		source = natsSource
		closeSource = natsSource.Close
	default:
		return nil, fmt.Errorf("unknown stream transport %q", cfg.StreamTransport)
	}

	abortExecutor := resilience.NewExecutor("backend.abort", resilience.DefaultConfig(), backend.ClassifyError, logger)
	abortClient := backend.NewClient(endpoints, backend.ClientOptions{
		Token:    cfg.BackendToken,
		Executor: abortExecutor,
	})

	trackerMetrics := metrics.NewTrackerMetrics("trackerd")
	tr := tracker.New(source, abortClient, tracker.Options{
		Config: tracker.Config{
			CompletedGrace: cfg.CompletedGrace,
			ErrorGrace:     cfg.ErrorGrace,
			CancelledGrace: cfg.CancelledGrace,
			SweepInterval:  cfg.SweepInterval,
			SweepCutoff:    cfg.SweepCutoff,
			AbortTimeout:   cfg.AbortTimeout,
		},
		Notifier: notify.NewLogNotifier(logger),
		Metrics:  trackerMetrics,
		Logger:   logger,
	})

	sweeper := tracker.NewSweeper(tr, cfg.SweepInterval, logger)
	if err := sweeper.Start(); err != nil {
		if closeSource != nil {
			closeSource()
		}
		return nil, fmt.Errorf("start sweeper: %w", err)
	}

	return &App{
		Config:  cfg,
		Tracker: tr,
		Metrics: trackerMetrics,
		sweeper: sweeper,
		closeFn: func() {
			if closeSource != nil {
				closeSource()
			}
		},
	}, nil
}

func (a *App) MetricsHandler() http.Handler {
	return a.Metrics.Handler()
}

func (a *App) Close() {
	a.sweeper.Stop()
	a.Tracker.Cleanup()
	if a.closeFn != nil {
		a.closeFn()
	}
}
