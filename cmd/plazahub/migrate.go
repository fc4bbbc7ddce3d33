package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/postgres"
)

func newMigrateCommand(envFiles *[]string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(ctx context.Context, m *postgres.Migrator, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			conn, err := postgres.NewConnection(cmd.Context(), postgresConfig(cfg))
			if err != nil {
				return err
			}
			defer conn.Close()
			return fn(cmd.Context(), postgres.NewMigrator(conn), cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				return printMigrations(ctx, m, out)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				return printMigrations(ctx, m, out)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(printMigrations),
		},
	)
	return cmd
}

func printMigrations(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, mg := range status {
		applied := "pending"
		if mg.Applied {
			applied = mg.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%03d\t%s\t%s\n", mg.Version, mg.Name, applied)
	}
	return w.Flush()
}
