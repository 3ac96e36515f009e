// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Triggers recorded on each run.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is a named unit of scheduled work. Run returns a short result summary.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (string, error)
}

type entry struct {
	job Job
	id  cron.EntryID
	// mu keeps scheduled and manual runs of the same job from overlapping.
	mu sync.Mutex
}

// Runner wraps a seconds-resolution UTC cron.
type Runner struct {
	cron     *cron.Cron
	recorder StatusRecorder
	logger   *zap.Logger
	baseCtx  context.Context
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a runner. baseCtx is passed to scheduled runs.
func New(baseCtx context.Context, recorder StatusRecorder, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if recorder == nil {
		recorder = NewMemoryRecorder()
	}
	return &Runner{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		recorder: recorder,
		logger:   logger,
		baseCtx:  baseCtx,
		now:      func() time.Time { return time.Now().UTC() },
		entries:  make(map[string]*entry),
	}
}

// Add registers a job. The schedule uses six fields, seconds first.
func (r *Runner) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("add job: name and run func are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[job.Name]; exists {
		return fmt.Errorf("add job %s: already registered", job.Name)
	}

	e := &entry{job: job}
	id, err := r.cron.AddFunc(job.Schedule, func() {
		_, _ = r.execute(r.baseCtx, e, TriggerSchedule)
	})
	if err != nil {
		return fmt.Errorf("add job %s: parse schedule %q: %w", job.Name, job.Schedule, err)
	}
	e.id = id
	r.entries[job.Name] = e

	r.logger.Info("scheduler-job-added",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule))
	return nil
}

// Start begins scheduled execution in the background.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("scheduler-started", zap.Int("jobs", len(r.entries)))
}

// Stop halts scheduling and waits for running jobs to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
		r.logger.Info("scheduler-stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// RunNow runs a job synchronously, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) (JobRun, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return JobRun{}, fmt.Errorf("run job %s: %w", name, ErrUnknownJob)
	}
	return r.execute(ctx, e, TriggerManual)
}

func (r *Runner) execute(ctx context.Context, e *entry, trigger string) (JobRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run := JobRun{Job: e.job.Name, Trigger: trigger, StartedAt: r.now()}
	start := time.Now()

	result, err := r.safeRun(ctx, e.job)

	run.Duration = time.Since(start)
	run.Result = result
	outcome := "success"
	if err != nil {
		run.Error = err.Error()
		outcome = "error"
	}
	r.recorder.Record(run)

	JobRunsTotal.WithLabelValues(e.job.Name, outcome).Inc()
	JobDurationSeconds.WithLabelValues(e.job.Name).Observe(run.Duration.Seconds())

	if err != nil {
		r.logger.Error("scheduler-job-failed",
			zap.String("job", e.job.Name),
			zap.String("trigger", trigger),
			zap.Duration("duration", run.Duration),
			zap.Error(err))
		return run, err
	}

	r.logger.Info("scheduler-job-completed",
		zap.String("job", e.job.Name),
		zap.String("trigger", trigger),
		zap.String("result", result),
		zap.Duration("duration", run.Duration))
	return run, nil
}

func (r *Runner) safeRun(ctx context.Context, job Job) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
	}()
	return job.Run(ctx)
}

// Status reports every registered job with its next scheduled run.
func (r *Runner) Status() []JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(r.entries))
	for name, e := range r.entries {
		status, _ := r.recorder.Last(name)
		status.Name = name
		status.Schedule = e.job.Schedule
		if next := r.cron.Entry(e.id).Next; !next.IsZero() {
			status.NextRun = &next
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
