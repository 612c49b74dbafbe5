package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"MetaGate/internal/domain/models"
	"MetaGate/internal/scheduler"
	"MetaGate/internal/usecase"
	"MetaGate/pkg/config"
	xhttp "MetaGate/pkg/http"
	pkgkafka "MetaGate/pkg/kafka"
	applogger "MetaGate/pkg/logger"
)

// App owns the long-lived components and their shutdown order.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	pipeline   *usecase.Pipeline
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	runHandler pkgkafka.MessageHandler
	scheduler  *scheduler.Scheduler
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates an App. consumer, runHandler and sched may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	pipeline *usecase.Pipeline,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	runHandler pkgkafka.MessageHandler,
	sched *scheduler.Scheduler,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		pipeline:   pipeline,
		httpServer: httpServer,
		consumer:   consumer,
		runHandler: runHandler,
		scheduler:  sched,
	}
}

// OnClose registers a resource closed at shutdown, in reverse order.
func (a *App) OnClose(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// RunOnce executes a single pipeline run and logs the comparison table.
func (a *App) RunOnce(ctx context.Context) (*models.RunReport, error) {
	defer a.close()
	report, err := a.pipeline.Run(ctx, models.RunParams{Trigger: "cli"})
	if err != nil {
		return nil, err
	}
	LogReport(a.log, report)
	return report, nil
}

// Serve starts the HTTP server, the run-request consumer and the cron
// scheduler, then blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if a.consumer != nil && a.runHandler != nil {
		a.consumer.RegisterHandler(a.runHandler)
		a.consumer.SetHook(pkgkafka.NewHookChain(pkgkafka.RequestIDHook()))
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start failed", applogger.Error(err))
		} else {
			a.log.Info("listening for run requests", applogger.String("topic", a.runHandler.Topic()))
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Register(a.cfg.Schedule.Cron); err != nil {
			return err
		}
		a.scheduler.Start()
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then waits for in-flight work, then closes
// storage and clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+a.cfg.Schedule.Timeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.log.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	a.close()
	a.log.Info("shutdown complete")
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}
	a.closers = nil
}

// LogReport writes the per-strategy comparison against the baseline.
func LogReport(l *applogger.Logger, r *models.RunReport) {
	l.Info("run report",
		applogger.String("run_id", r.ID),
		applogger.Time("from", r.From),
		applogger.Time("to", r.To),
		applogger.Strings("assets", r.Assets),
		applogger.Int("folds", len(r.Folds)),
		applogger.Float64("label_positive_rate", r.Labels.Overall.PositiveRate),
		applogger.Duration("duration", r.Duration.Round(time.Millisecond)),
	)
	l.Info("baseline",
		applogger.Float64("total_return", r.Baseline.TotalReturn),
		applogger.Float64("sharpe", r.Baseline.Sharpe),
		applogger.Float64("max_drawdown", r.Baseline.MaxDrawdown),
		applogger.Int("trades", r.Baseline.Trades),
	)
	for i, s := range r.Strategies {
		fields := []applogger.Field{
			applogger.String("model", s.Model),
			applogger.Float64("threshold", s.Threshold),
			applogger.Bool("regime_filter", s.RegimeFilter),
			applogger.Int("passed", s.Passed),
			applogger.Int("vetoed", s.Vetoed),
		}
		if i < len(r.Comparisons) {
			for _, row := range r.Comparisons[i].Rows {
				fields = append(fields, applogger.Float64(row.Metric, row.Improved), applogger.Float64(row.Metric+"_delta", row.Improvement))
			}
		}
		l.Info("strategy", fields...)
	}
}
