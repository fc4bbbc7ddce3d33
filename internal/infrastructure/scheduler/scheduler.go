// Package scheduler runs periodic background jobs for plaza-hub, such as
// advancing internships whose start or end date has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// Locker keeps a job from running on more than one instance at a time.
// release is nil when acquired is false.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(context.Context) error, acquired bool, err error)
}

// Observer receives job outcomes, typically for metrics.
type Observer interface {
	JobCompleted(job string, elapsed time.Duration, err error)
	JobSkipped(job string)
}

type nopObserver struct{}

func (nopObserver) JobCompleted(string, time.Duration, error) {}
func (nopObserver) JobSkipped(string)                         {}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Skipped     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs. A job never overlaps with
// itself: a tick that finds it still running is ignored.
type Scheduler struct {
	mu sync.RWMutex

	logger   *slog.Logger
	timezone *time.Location
	tick     time.Duration
	locker   Locker
	observer Observer

	jobs     map[string]*scheduledJob
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastRuns map[string]JobResult
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	nextRun   time.Time
	inFlight  bool
	runCount  int64
	failCount int64
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// Tick is how often due jobs are checked (default: 1s).
	Tick time.Duration

	// Locker, when set, guards every run with a named lock.
	Locker Locker

	// Observer receives job outcomes.
	Observer Observer
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:   slog.Default(),
		Timezone: time.UTC,
		Tick:     time.Second,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}

	return &Scheduler{
		logger:   config.Logger.With("component", "scheduler"),
		timezone: config.Timezone,
		tick:     config.Tick,
		locker:   config.Locker,
		observer: config.Observer,
		jobs:     make(map[string]*scheduledJob),
		lastRuns: make(map[string]JobResult),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().In(s.timezone)),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", jobs)

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(time.Now().In(s.timezone))
		}
	}
}

// dispatchDue starts every due job that is not already running.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sj := range s.jobs {
		if sj.inFlight || sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		sj.inFlight = true
		sj.nextRun = sj.schedule.Next(now)

		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(s.ctx, sj)
		}(sj)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobInFlight, jobName)
	}
	sj.inFlight = true
	s.mu.Unlock()

	result := s.execute(ctx, sj)
	return result, result.Error
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) JobResult {
	name := sj.job.Name()
	result := JobResult{JobName: name, StartedAt: time.Now()}

	defer func() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)

		s.mu.Lock()
		sj.inFlight = false
		if !result.Skipped {
			sj.runCount++
			if result.Error != nil {
				sj.failCount++
			}
		}
		s.lastRuns[name] = result
		s.mu.Unlock()
	}()

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, name)
		if err != nil {
			result.Error = fmt.Errorf("acquire lock: %w", err)
			s.logger.Error("job lock failed", "job", name, "error", err)
			s.observer.JobCompleted(name, 0, result.Error)
			return result
		}
		if !acquired {
			result.Skipped = true
			s.logger.Debug("job skipped, locked elsewhere", "job", name)
			s.observer.JobSkipped(name)
			return result
		}
		defer func() {
			// The run context may already be cancelled.
			if err := release(context.Background()); err != nil {
				s.logger.Warn("job lock release failed", "job", name, "error", err)
			}
		}()
	}

	s.logger.Info("job started", "job", name)
	started := time.Now()
	err := s.safeRun(ctx, sj.job)
	elapsed := time.Since(started)
	s.observer.JobCompleted(name, elapsed, err)

	result.Success = err == nil
	result.Error = err
	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", elapsed.String(), "error", err)
	} else {
		s.logger.Info("job completed", "job", name, "duration", elapsed.String())
	}
	return result
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
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
	NextRun     time.Time
	Running     bool
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			NextRun:     sj.nextRun,
			Running:     sj.inFlight,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
		}
		if last, ok := s.lastRuns[name]; ok {
			info.LastResult = &last
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobInFlight is returned by RunNow while the job is running.
	ErrJobInFlight = errors.New("job is already running")

	// ErrJobPanic wraps a panic raised by a job.
	ErrJobPanic = errors.New("job panicked")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
