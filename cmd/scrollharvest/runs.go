package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/report"
	"github.com/pevans/scrollharvest/runs"
)

var (
	runsMode   string
	runsLimit  int
	runsOffset int
	runsFormat string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded harvest runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvest runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(runsFormat); err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		filter := runs.RunFilter{Limit: runsLimit, Offset: runsOffset}
		if runsMode != "" {
			mode := records.Mode(runsMode)
			filter.Mode = &mode
		}

		summaries, err := store.ListRuns(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if runsFormat == "json" {
			return printJSON(map[string]any{"runs": summaries, "total": len(summaries)})
		}
		printRunsTable(summaries)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(runsFormat); err != nil {
			return err
		}

		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", args[0], err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err := store.GetRun(cmd.Context(), runID)
		if err != nil {
			return err
		}
		recs, err := store.ListRecords(cmd.Context(), runID)
		if err != nil {
			return err
		}

		switch runsFormat {
		case "json":
			return printJSON(map[string]any{"summary": summary, "records": recs})
		case "compact":
			printRecordsCompact(recs)
		default:
			printSummaryTable(*summary)
			printRecordsTable(recs)
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", args[0], err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteRun(cmd.Context(), runID); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", runID)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <run-id> <out.html>",
	Short: "Render the HTML report of a recorded run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", args[0], err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err := store.GetRun(cmd.Context(), runID)
		if err != nil {
			return err
		}
		recs, err := store.ListRecords(cmd.Context(), runID)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(args[1]), 0o700); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()

		if err := report.Render(f, *summary, recs); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[1])
		return f.Close()
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsMode, "mode", "", "only runs of this mode (window or first_n)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
	runsListCmd.Flags().IntVar(&runsOffset, "offset", 0, "number of runs to skip")
	for _, c := range []*cobra.Command{runsListCmd, runsShowCmd} {
		c.Flags().StringVarP(&runsFormat, "format", "f", "table", "output format: table, json or compact")
	}

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd, reportCmd)
}

func openStore() (*runs.Store, error) {
	store, err := runs.NewStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return store, nil
}
