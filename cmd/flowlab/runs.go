package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/config"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/database"
	"github.com/nerrad567/flowlab-core/internal/runlog"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	Limit  int
	Status string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:          "runs [run-id]",
		Short:        "List archived runs, or show one as JSON",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, rootOpts)
			if err != nil {
				return err
			}
			repo, closeDB, err := openArchive(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if len(args) == 1 {
				return showRun(cmd.Context(), repo, args[0], cmd.OutOrStdout())
			}
			return listRuns(cmd.Context(), repo, runlog.Filter{Status: opts.Status, Limit: opts.Limit}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only list runs with this status")

	return cmd
}

func openArchive(ctx context.Context, cfg *config.Config) (runlog.Repository, func(), error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	closeDB := func() {
		db.Close() //nolint:errcheck // Read-only use
	}
	return runlog.NewSQLiteRepository(db.DB), closeDB, nil
}

func listRuns(ctx context.Context, repo runlog.Repository, filter runlog.Filter, w io.Writer) error {
	result, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "no runs archived")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROTOCOL\tSTATUS\tDRY RUN\tSTARTED\tELAPSED")
	for _, r := range result.Runs {
		dry := "-"
		if r.DryRun > 0 {
			dry = fmt.Sprintf("%dx", r.DryRun)
		}
		elapsed := (r.EndedAt.Sub(r.StartedAt) - r.TotalPaused).Round(time.Millisecond)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Protocol, r.Status, dry, r.StartedAt.Local().Format(time.DateTime), elapsed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if result.Total > len(result.Runs) {
		fmt.Fprintf(w, "showing %d of %d runs\n", len(result.Runs), result.Total)
	}
	return nil
}

func showRun(ctx context.Context, repo runlog.Repository, id string, w io.Writer) error {
	run, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
