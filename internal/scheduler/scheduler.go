package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/databot/youtube-tracker/internal/metrics"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// Job is one periodic task. Run receives a context carrying the per-run
// deadline.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives the periodic jobs. Per job type at most one instance runs
// at a time; across job types the total is bounded by a weighted semaphore. A
// failing run is logged and counted, never fatal to the schedule.
type Scheduler struct {
	engine  *cron.Cron
	sem     *semaphore.Weighted
	timeout time.Duration
	jobs    map[string]Job
	log     *zap.Logger
}

// New creates a Scheduler allowing maxConcurrent simultaneous runs, each
// bounded by timeout.
func New(maxConcurrent int64, timeout time.Duration) *Scheduler {
	s := &Scheduler{
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
		jobs:    make(map[string]Job),
		log:     logger.Named("scheduler"),
	}
	s.engine = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	return s
}

// Register adds jobs to the schedule. Must be called before Start.
func (s *Scheduler) Register(jobs ...Job) error {
	for _, job := range jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("job %s has no interval", job.Name)
		}
		if _, exists := s.jobs[job.Name]; exists {
			return fmt.Errorf("job %s registered twice", job.Name)
		}

		job := job
		spec := fmt.Sprintf("@every %s", job.Interval)
		if _, err := s.engine.AddFunc(spec, func() { s.run(job) }); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
		s.jobs[job.Name] = job

		s.log.Info("job registered",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
	return nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	s.engine.Start()
}

// Stop halts the schedule and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.engine.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow triggers one job by name outside its schedule, waiting for it to
// complete. It shares the concurrency bound with scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	return s.execute(ctx, job)
}

// Names lists the registered job names.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "skipped").Inc()
		s.log.Warn("job skipped, no worker slot before deadline",
			zap.String("job", job.Name))
		return
	}
	defer s.sem.Release(1)

	_ = s.execute(ctx, job)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	metrics.JobDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		s.log.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return err
	}

	metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
	s.log.Info("job completed",
		zap.String("job", job.Name),
		zap.Duration("elapsed", elapsed))
	return nil
}
