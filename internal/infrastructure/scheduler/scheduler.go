// Package scheduler runs periodic background jobs of the worker: leaderboard
// rebuilds and badge catalog reloads.
// Расписание исполняет gocron; здесь живут учёт запусков, история и метрики.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrJobNotFound is returned when a job name is not registered.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrJobExists is returned when a job name is registered twice.
	ErrJobExists = errors.New("scheduler: job already registered")

	// ErrInvalidSchedule is returned for a schedule with neither interval nor cron.
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

	// ErrSchedulerRunning is returned when registering after Start.
	ErrSchedulerRunning = errors.New("scheduler: already running")
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of background work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Run executes the job. The context carries the per-run timeout.
	Run(ctx context.Context) error
}

// JobResult describes one finished run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// Schedule tells when a job fires. Exactly one of Every or Cron must be set.
type Schedule struct {
	// Every runs the job at a fixed interval.
	Every time.Duration

	// Cron is a standard five-field crontab expression.
	Cron string

	// RunOnStart fires the job once as soon as the scheduler starts.
	RunOnStart bool
}

// Every returns an interval schedule.
func Every(d time.Duration) Schedule {
	return Schedule{Every: d}
}

// Cron returns a crontab schedule.
func Cron(expr string) Schedule {
	return Schedule{Cron: expr}
}

// String returns a readable form of the schedule.
func (s Schedule) String() string {
	if s.Cron != "" {
		return "cron(" + s.Cron + ")"
	}
	return "every " + s.Every.String()
}

func (s Schedule) validate() error {
	switch {
	case s.Cron != "" && s.Every > 0:
		return fmt.Errorf("%w: both cron and interval set", ErrInvalidSchedule)
	case s.Cron == "" && s.Every <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
	}
	return nil
}

func (s Schedule) definition() gocron.JobDefinition {
	if s.Cron != "" {
		return gocron.CronJob(s.Cron, false)
	}
	return gocron.DurationJob(s.Every)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config holds scheduler settings.
type Config struct {
	// Location is the time zone cron expressions are evaluated in.
	Location *time.Location

	// JobTimeout bounds a single run.
	JobTimeout time.Duration

	// HistorySize is how many results GetHistory keeps.
	HistorySize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Location:    time.UTC,
		JobTimeout:  2 * time.Minute,
		HistorySize: 100,
	}
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	handle    gocron.Job
	runCount  int64
	failCount int64
	lastRun   time.Time
}

// Scheduler wraps a gocron scheduler and tracks job outcomes.
type Scheduler struct {
	config Config
	log    *logger.Logger
	cron   gocron.Scheduler

	mu         sync.RWMutex
	jobs       map[string]*scheduledJob
	lastRuns   map[string]*JobResult
	runHistory []JobResult
	running    bool
	stopOnce   sync.Once
	stopErr    error

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs must be registered before Start.
func New(config Config, log *logger.Logger) (*Scheduler, error) {
	defaults := DefaultConfig()
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if log == nil {
		log = logger.Nop()
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(config.Location))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:   config,
		log:      log.With(logger.Component("scheduler")),
		cron:     cron,
		jobs:     make(map[string]*scheduledJob),
		lastRuns: make(map[string]*JobResult),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Register adds a job under its name.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if err := schedule.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, name)
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if schedule.RunOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	handle, err := s.cron.NewJob(
		schedule.definition(),
		gocron.NewTask(func() { _, _ = s.execute(s.ctx, name, false) }),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, name, err)
	}

	s.jobs[name] = &scheduledJob{job: job, schedule: schedule, handle: handle}
	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
	)
	return nil
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", count))
}

// Stop cancels running jobs and waits for them to return. Later calls are
// no-ops returning the first result.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if err := s.cron.Shutdown(); err != nil {
			s.stopErr = fmt.Errorf("scheduler: shutdown: %w", err)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.log.Info("scheduler stopped")
	})
	return s.stopErr
}

// RunNow executes a job synchronously in the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	return s.execute(ctx, jobName, true)
}

func (s *Scheduler) execute(ctx context.Context, name string, manual bool) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	startedAt := time.Now()
	err := s.runSafely(runCtx, sj.job)
	completedAt := time.Now()

	result := &JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.mu.Lock()
	sj.runCount++
	sj.lastRun = startedAt
	if err != nil {
		sj.failCount++
	}
	s.lastRuns[name] = result
	s.runHistory = append(s.runHistory, *result)
	if over := len(s.runHistory) - s.config.HistorySize; over > 0 {
		s.runHistory = s.runHistory[over:]
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed",
			logger.String("job", name),
			logger.Bool("manual", manual),
			logger.Latency(result.Duration),
			logger.Err(err),
		)
	} else {
		s.log.Debug("job completed",
			logger.String("job", name),
			logger.Bool("manual", manual),
			logger.Latency(result.Duration),
		)
	}
	return result, err
}

func (s *Scheduler) runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	infos := make([]JobInfo, 0, len(names))
	for _, name := range names {
		if info, err := s.GetJobInfo(name); err == nil {
			infos = append(infos, *info)
		}
	}
	return infos
}

// GetJobInfo returns information about a specific job.
func (s *Scheduler) GetJobInfo(jobName string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	info := &JobInfo{
		Name:        jobName,
		Description: sj.job.Description(),
		Schedule:    sj.schedule.String(),
		LastRun:     sj.lastRun,
		RunCount:    sj.runCount,
		FailCount:   sj.failCount,
		LastResult:  s.lastRuns[jobName],
	}
	if sj.handle != nil {
		if next, err := sj.handle.NextRun(); err == nil {
			info.NextRun = next
		}
	}
	return info, nil
}

// GetHistory returns up to limit most recent results, oldest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}
	out := make([]JobResult, limit)
	copy(out, s.runHistory[len(s.runHistory)-limit:])
	return out
}
