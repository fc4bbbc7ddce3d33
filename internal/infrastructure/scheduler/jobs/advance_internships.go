// Package jobs contains implementations of scheduled jobs for plaza-hub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pasantias/plaza-hub/internal/application/command"
	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADVANCE INTERNSHIPS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Transitioner applies a single lifecycle transition.
type Transitioner interface {
	Handle(ctx context.Context, cmd command.TransitionStateCommand) (*command.TransitionStateResult, error)
}

// AdvanceInternshipsJob starts pending internships whose start date has
// arrived and finishes running internships whose end date has passed. Every
// move goes through the transition handler, so a reviewer who changed the
// internship first wins and the job simply skips it.
type AdvanceInternshipsJob struct {
	finder       placement.InternshipFinder
	transitioner Transitioner
	logger       *slog.Logger
	config       AdvanceInternshipsConfig

	lastStats atomic.Pointer[AdvanceStats]
}

// AdvanceInternshipsConfig contains configuration for the job.
type AdvanceInternshipsConfig struct {
	// BatchSize is the maximum number of internships moved per direction per run.
	BatchSize int

	// Timeout is the maximum duration of one run.
	Timeout time.Duration

	// Enabled is consulted at the start of every run. Nil means always on.
	Enabled func() bool

	// Now returns the reference date. Defaults to time.Now.
	Now func() time.Time
}

// DefaultAdvanceInternshipsConfig returns sensible defaults.
func DefaultAdvanceInternshipsConfig() AdvanceInternshipsConfig {
	return AdvanceInternshipsConfig{
		BatchSize: 500,
		Timeout:   2 * time.Minute,
	}
}

// AdvanceStats contains statistics from one run.
type AdvanceStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Disabled  bool
	Started   int
	Finished  int
	Conflicts int
	Failures  int
}

// NewAdvanceInternshipsJob creates the job.
func NewAdvanceInternshipsJob(
	finder placement.InternshipFinder,
	transitioner Transitioner,
	logger *slog.Logger,
	config AdvanceInternshipsConfig,
) *AdvanceInternshipsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultAdvanceInternshipsConfig().BatchSize
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &AdvanceInternshipsJob{
		finder:       finder,
		transitioner: transitioner,
		logger:       logger.With("job", "advance_internships"),
		config:       config,
	}
}

// Name returns the job name.
func (j *AdvanceInternshipsJob) Name() string {
	return "advance_internships"
}

// Description returns a human-readable description.
func (j *AdvanceInternshipsJob) Description() string {
	return "Starts internships on their start date and finishes them after their end date"
}

// Run executes the job.
func (j *AdvanceInternshipsJob) Run(ctx context.Context) error {
	stats := &AdvanceStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	if j.config.Enabled != nil && !j.config.Enabled() {
		stats.Disabled = true
		j.logger.Debug("auto advance disabled")
		return nil
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	asOf := j.config.Now()
	var errs []error

	due, err := j.finder.DueToStart(ctx, asOf, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("find internships due to start: %w", err)
	}
	stats.Started, err = j.advance(ctx, due, placement.InternshipPending, placement.InternshipInProgress, stats)
	if err != nil {
		errs = append(errs, err)
	}

	// Internships started above may already be due to finish.
	due, err = j.finder.DueToFinish(ctx, asOf, j.config.BatchSize)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("find internships due to finish: %w", err))...)
	}
	stats.Finished, err = j.advance(ctx, due, placement.InternshipInProgress, placement.InternshipFinished, stats)
	if err != nil {
		errs = append(errs, err)
	}

	j.logger.Info("internships advanced",
		"started", stats.Started,
		"finished", stats.Finished,
		"conflicts", stats.Conflicts,
		"failures", stats.Failures,
	)
	return errors.Join(errs...)
}

func (j *AdvanceInternshipsJob) advance(
	ctx context.Context,
	due []*placement.Internship,
	from, to placement.InternshipState,
	stats *AdvanceStats,
) (int, error) {
	moved := 0
	var firstErr error
	for _, in := range due {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		_, err := j.transitioner.Handle(ctx, command.TransitionStateCommand{
			Kind:     lifecycle.KindInternship,
			EntityID: in.ID,
			From:     lifecycle.State(from),
			To:       lifecycle.State(to),
			ActorID:  "scheduler",
		})
		switch {
		case err == nil:
			moved++
		case errors.Is(err, shared.ErrStateTransition):
			stats.Conflicts++
		default:
			stats.Failures++
			j.logger.Warn("failed to advance internship",
				"internship_id", in.ID,
				"to", string(to),
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("advance internship %s to %s: %w", in.ID, to, err)
			}
		}
	}
	return moved, firstErr
}

// LastStats returns statistics from the last run.
func (j *AdvanceInternshipsJob) LastStats() *AdvanceStats {
	return j.lastStats.Load()
}
