// Package main is the plaza-hub entry point.
//
// serve runs the event bus, the scheduler and the ops HTTP server.
// migrate manages the schema. The remaining commands run single
// allocation and lifecycle operations for operators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pasantias/plaza-hub/internal/domain/shared"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "plazahub: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a rejected request the operator can correct (no seats,
// ineligible students, stale state, bad input) and 1 for any other failure.
func exitCode(err error) int {
	if shared.IsRecoverable(err) {
		return 2
	}
	return 1
}

func newRootCommand() *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "plazahub",
		Short: "Internship plaza allocation service",
		Long: `plazahub assigns students to company internship slots without
overbooking and moves companies, documents, slots and internships through
their validation lifecycles.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Dotenv files loaded before reading the environment")

	cmd.AddCommand(
		newServeCommand(&envFiles),
		newMigrateCommand(&envFiles),
		newAdvanceCommand(&envFiles),
		newAssignCommand(&envFiles),
		newTransitionCommand(&envFiles),
		newDocumentCommand(&envFiles),
		newAvailabilityCommand(&envFiles),
		newEligibilityCommand(&envFiles),
		newFeaturesCommand(&envFiles),
	)
	return cmd
}
