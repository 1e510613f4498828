package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while it holds the
// cluster-wide lock. A failing job does not stop the jobs after it.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// JobResult is the outcome of one job within a cycle.
type JobResult struct {
	Job      string
	Items    int
	Duration time.Duration
	Err      error
}

// CycleReport summarises one RunOnce call. Skipped is set when another
// replica held the lock and nothing ran.
type CycleReport struct {
	Skipped bool
	Results []JobResult
}

// Failed reports whether any job in the cycle returned an error.
func (r CycleReport) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the job errors of the cycle, or returns nil.
func (r CycleReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job, res.Err))
		}
	}
	return errors.Join(errs...)
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
	}
	if svc.registry == nil {
		svc.registry = &Registry{}
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. Lock errors are logged and the loop keeps going.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle. The error covers the lock only; job
// failures are carried in the report.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron.lock_held_elsewhere")
		return CycleReport{Skipped: true}, nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", relErr)
		}
	}()

	// A cancelled cycle starts no further jobs.
	var report CycleReport
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, s.runJob(ctx, job))
	}

	failed := 0
	for _, res := range report.Results {
		if res.Err != nil {
			failed++
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(report.Results),
		"failed": failed,
	}), "cron.cycle_completed")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (res JobResult) {
	res.Job = job.Name()
	jobCtx := s.logg.WithField(ctx, "job", res.Job)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := s.now()
	defer func() {
		if rec := recover(); rec != nil {
			res.Err = fmt.Errorf("job panicked: %v", rec)
		}
		finished := s.now()
		res.Duration = finished.Sub(start)
		s.metrics.ObserveRun(res.Job, finished, res.Duration, res.Items, res.Err)

		logCtx := s.logg.WithFields(jobCtx, map[string]any{
			"duration_ms": res.Duration.Milliseconds(),
			"items":       res.Items,
		})
		if res.Err != nil {
			s.logg.Error(logCtx, "cron.job_failed", res.Err)
			return
		}
		s.logg.Info(logCtx, "cron.job_completed")
	}()

	res.Items, res.Err = job.Run(jobCtx)
	return res
}
