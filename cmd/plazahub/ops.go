package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pasantias/plaza-hub/config"
	"github.com/pasantias/plaza-hub/internal/application/command"
	"github.com/pasantias/plaza-hub/internal/application/query"
	"github.com/pasantias/plaza-hub/internal/domain/lifecycle"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/redis"
	"github.com/pasantias/plaza-hub/internal/infrastructure/scheduler"
	"github.com/pasantias/plaza-hub/internal/infrastructure/scheduler/jobs"
	"github.com/pasantias/plaza-hub/pkg/timeutil"
)

// withApp loads configuration, builds the app, runs fn and closes the app.
// Events published by fn are handled before withApp returns.
func withApp(cmd *cobra.Command, envFiles []string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(envFiles)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), a)
	if err := a.close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// ALLOCATION
// ══════════════════════════════════════════════════════════════════════════════

type internshipOutput struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	State     string `json:"state"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

func newAssignCommand(envFiles *[]string) *cobra.Command {
	var (
		slotID     string
		students   []string
		supervisor string
		start, end string
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a batch of students to a slot",
		Long: `Creates one pending internship per student. The batch is all or
nothing: if any student is ineligible or the slot lacks free seats, nothing
is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *envFiles, func(ctx context.Context, a *app) error {
				now := time.Now()
				startDate, err := timeutil.ParseDate(start, now, a.cfg.App.Location)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				endDate, err := timeutil.ParseOptionalDate(end, now, a.cfg.App.Location)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}

				res, err := a.assign.Handle(ctx, command.AssignStudentsCommand{
					SlotID:       slotID,
					StudentIDs:   students,
					SupervisorID: supervisor,
					StartDate:    startDate,
					EndDate:      endDate,
					ActorID:      actor,
				})
				if err != nil {
					return err
				}

				out := struct {
					SlotID      string             `json:"slot_id"`
					CompanyID   string             `json:"company_id"`
					Available   int                `json:"available"`
					Internships []internshipOutput `json:"internships"`
				}{SlotID: res.SlotID, CompanyID: res.CompanyID, Available: res.Available}
				for _, in := range res.Internships {
					o := internshipOutput{
						ID:        in.ID,
						StudentID: in.StudentID,
						State:     string(in.State),
						StartDate: timeutil.FormatDate(in.StartDate),
					}
					if in.EndDate != nil {
						o.EndDate = timeutil.FormatDate(*in.EndDate)
					}
					out.Internships = append(out.Internships, o)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&slotID, "slot", "", "Slot id")
	cmd.Flags().StringSliceVar(&students, "students", nil, "Comma-separated student ids")
	cmd.Flags().StringVar(&supervisor, "supervisor", "", "Supervising tutor id")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD, today or tomorrow)")
	cmd.Flags().StringVar(&end, "end", "", "Optional end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Operator id recorded in logs")
	_ = cmd.MarkFlagRequired("slot")
	_ = cmd.MarkFlagRequired("students")
	_ = cmd.MarkFlagRequired("supervisor")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newAvailabilityCommand(envFiles *[]string) *cobra.Command {
	var (
		slotID  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show capacity, occupancy and free seats of a slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *envFiles, func(ctx context.Context, a *app) error {
				dto, err := a.availability.Handle(ctx, query.GetSlotAvailabilityQuery{
					SlotID:      slotID,
					BypassCache: noCache,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), dto)
			})
		},
	}

	cmd.Flags().StringVar(&slotID, "slot", "", "Slot id")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Read from the database even if a cached value exists")
	_ = cmd.MarkFlagRequired("slot")
	return cmd
}

func newEligibilityCommand(envFiles *[]string) *cobra.Command {
	var (
		slotID   string
		students []string
	)

	cmd := &cobra.Command{
		Use:   "eligibility",
		Short: "Explain which students could be assigned to a slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *envFiles, func(ctx context.Context, a *app) error {
				res, err := a.eligibility.Handle(ctx, query.CheckEligibilityQuery{
					SlotID:     slotID,
					StudentIDs: students,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&slotID, "slot", "", "Slot id")
	cmd.Flags().StringSliceVar(&students, "students", nil, "Comma-separated student ids")
	_ = cmd.MarkFlagRequired("slot")
	_ = cmd.MarkFlagRequired("students")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

func newTransitionCommand(envFiles *[]string) *cobra.Command {
	var (
		kind, id string
		from, to string
		actor    string
	)

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Move a company, document bundle, slot or internship to another state",
		Long: `Applies one lifecycle transition. --from must name the state currently
stored; if another operator changed it first, the command fails and reports
the current state.`,
		Example: `  plazahub transition --kind company --id c-1 --from pending --to accepted
  plazahub transition --kind internship --id i-9 --from in_progress --to cancelled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *envFiles, func(ctx context.Context, a *app) error {
				res, err := a.transition.Handle(ctx, command.TransitionStateCommand{
					Kind:     lifecycle.Kind(kind),
					EntityID: id,
					From:     lifecycle.State(from),
					To:       lifecycle.State(to),
					ActorID:  actor,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"kind":            res.Kind,
					"entity_id":       res.EntityID,
					"from":            res.From,
					"to":              res.To,
					"slot_id":         res.SlotID,
					"transitioned_at": res.TransitionedAt.UTC().Format(time.RFC3339),
				})
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Entity kind: company, document, slot or internship")
	cmd.Flags().StringVar(&id, "id", "", "Entity id (student id for document bundles)")
	cmd.Flags().StringVar(&from, "from", "", "State the entity is expected to be in")
	cmd.Flags().StringVar(&to, "to", "", "Requested state")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Operator id recorded in logs")
	for _, f := range []string{"kind", "id", "from", "to"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newDocumentCommand(envFiles *[]string) *cobra.Command {
	var (
		studentID string
		document  string
		absent    bool
	)

	cmd := &cobra.Command{
		Use:   "document",
		Short: "Record that a student's document was received or withdrawn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *envFiles, func(ctx context.Context, a *app) error {
				res, err := a.document.Handle(ctx, command.RecordDocumentCommand{
					StudentID: studentID,
					Document:  placement.DocumentType(document),
					Present:   !absent,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"student_id": res.StudentID,
					"complete":   res.Complete,
					"present":    res.Present,
					"missing":    res.Missing,
					"review":     res.Review,
				})
			})
		},
	}

	cmd.Flags().StringVar(&studentID, "student", "", "Student id")
	cmd.Flags().StringVar(&document, "type", "", "Document type, e.g. medical_certificate")
	cmd.Flags().BoolVar(&absent, "absent", false, "Mark the document as missing instead of received")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newAdvanceCommand(envFiles *[]string) *cobra.Command {
	var (
		asOf  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Start and finish internships whose dates have come",
		Long: `Runs the advance_internships job once. Pending internships whose start
date has come move to in_progress; in-progress internships past their end
date move to finished. Without --force the run is a no-op unless the
lifecycle.auto_advance feature is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *envFiles, func(ctx context.Context, a *app) error {
				jobCfg := jobs.DefaultAdvanceInternshipsConfig()
				jobCfg.BatchSize = a.cfg.Scheduler.AdvanceBatchSize
				jobCfg.Timeout = a.cfg.Scheduler.JobTimeout
				jobCfg.Enabled = a.cfg.Features.Enabled(config.FeatureAutoAdvance)
				if force {
					jobCfg.Enabled = nil
				}
				jobCfg.Now = func() time.Time { return time.Now().In(a.cfg.App.Location) }
				if asOf != "" {
					day, err := timeutil.ParseDate(asOf, time.Now(), a.cfg.App.Location)
					if err != nil {
						return fmt.Errorf("--as-of: %w", err)
					}
					jobCfg.Now = func() time.Time { return day }
				}
				job := jobs.NewAdvanceInternshipsJob(a.store, a.transition, a.slog, jobCfg)

				// Run through a scheduler so the job lock keeps this run from
				// overlapping with a serving instance.
				schedCfg := scheduler.DefaultSchedulerConfig()
				schedCfg.Logger = a.slog
				schedCfg.Observer = a.recorder
				if a.cache != nil {
					schedCfg.Locker = redis.NewJobLock(a.cache, a.cfg.Scheduler.JobTimeout+redis.TTLJobLock)
				}
				sched := scheduler.NewScheduler(schedCfg)
				if err := sched.Register(job, scheduler.NewIntervalSchedule(24*time.Hour)); err != nil {
					return err
				}
				res, runErr := sched.RunNow(ctx, job.Name())
				if res.JobName == "" {
					return runErr
				}
				if res.Skipped {
					return fmt.Errorf("%s is running on another instance", job.Name())
				}

				out := map[string]interface{}{
					"duration": res.Duration.Round(time.Millisecond).String(),
				}
				if stats := job.LastStats(); stats != nil {
					out["disabled"] = stats.Disabled
					out["started"] = stats.Started
					out["finished"] = stats.Finished
					out["conflicts"] = stats.Conflicts
					out["failures"] = stats.Failures
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference date instead of today (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&force, "force", false, "Run even if lifecycle.auto_advance is disabled")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURES
// ══════════════════════════════════════════════════════════════════════════════

func newFeaturesCommand(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List feature flags and their effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FEATURE\tENABLED\tDESCRIPTION")
			for _, f := range cfg.Features.GetAllFeatures() {
				fmt.Fprintf(w, "%s\t%t\t%s\n", f.Name, f.Enabled, f.Description)
			}
			return w.Flush()
		},
	}
}
