// Package scheduler triggers pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/internal/service/cache"
	"MetaGate/internal/usecase"
	"MetaGate/pkg/logger"
)

const lockKey = "scheduled_run"

// Scheduler runs the pipeline on a cron spec with a seconds field. With a
// shared Locker only one replica runs a given tick.
type Scheduler struct {
	cron    *cron.Cron
	runner  usecase.Runner
	locker  cache.Locker
	lockTTL time.Duration
	timeout time.Duration
	metrics domrepo.Metrics
	log     *logger.Logger
	ctx     context.Context
}

// New creates a scheduler. locker and metrics may be nil.
func New(ctx context.Context, runner usecase.Runner, locker cache.Locker, timeout time.Duration, metrics domrepo.Metrics, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		runner:  runner,
		locker:  locker,
		lockTTL: timeout,
		timeout: timeout,
		metrics: metrics,
		log:     log.With(logger.String("component", "scheduler")),
		ctx:     ctx,
	}
}

// Register schedules a run on spec, e.g. "0 0 */6 * * *".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.scheduledRun); err != nil {
		return fmt.Errorf("register run schedule %q: %w", spec, err)
	}
	s.log.Info("run scheduled", logger.String("cron", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron and waits for a running job until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled run: %w", ctx.Err())
	}
}

func (s *Scheduler) scheduledRun() {
	if _, err := s.RunNow(s.ctx); err != nil {
		s.log.Error("scheduled run failed", logger.Error(err))
	}
}

// RunNow runs the pipeline once unless another holder has the lock. It reports
// whether a run happened.
func (s *Scheduler) RunNow(ctx context.Context) (bool, error) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			s.recordError("scheduler_lock")
			return false, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			s.log.Info("scheduled run skipped, lock held elsewhere")
			return false, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), lockKey); err != nil {
				s.log.Warn("release run lock", logger.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	report, err := s.runner.Run(ctx, models.RunParams{Trigger: "cron"})
	if err != nil {
		s.recordError("scheduler_run")
		return true, err
	}
	s.log.Info("scheduled run finished", logger.String("run_id", report.ID))
	return true, nil
}

func (s *Scheduler) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}
