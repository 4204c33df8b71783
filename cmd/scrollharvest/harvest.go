package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pevans/scrollharvest/harvest"
)

var (
	harvestOpts   sessionOptions
	harvestFormat string
)

var windowCmd = &cobra.Command{
	Use:   "window <url> <start-label> <end-label>",
	Short: "Harvest every card published inside a date window",
	Long: `Harvest every card whose time label falls between the start and end
labels, inclusive. Labels use the feed's own grammar ("7天前", "08月19日");
with time.extended_labels enabled ISO dates such as 2024-08-19 work too.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd, func(ctx context.Context, h *harvest.Harvester) (*harvest.Result, error) {
			return h.HarvestByDateWindow(ctx, args[0], args[1], args[2])
		})
	},
}

var firstCmd = &cobra.Command{
	Use:   "first <url> <count>",
	Short: "Harvest the first N cards in feed order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[1], err)
		}
		return runHarvest(cmd, func(ctx context.Context, h *harvest.Harvester) (*harvest.Result, error) {
			return h.HarvestFirstN(ctx, args[0], n)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{windowCmd, firstCmd} {
		c.Flags().StringVar(&harvestOpts.snapshots, "snapshots", "", "replay saved page snapshots from this directory instead of launching a browser")
		c.Flags().StringVar(&harvestOpts.today, "today", "", "date (YYYY-MM-DD) relative labels resolve against when replaying snapshots")
		c.Flags().StringVar(&harvestOpts.jsonDir, "json-dir", "", "also write records as JSON files under this directory")
		c.Flags().StringVar(&harvestOpts.report, "report", "", "also write an HTML report to this path ({run_id} is substituted)")
		c.Flags().StringVarP(&harvestFormat, "format", "f", "table", "output format: table, json or compact")
		rootCmd.AddCommand(c)
	}
}

func runHarvest(cmd *cobra.Command, fn func(context.Context, *harvest.Harvester) (*harvest.Result, error)) error {
	if err := checkFormat(harvestFormat); err != nil {
		return err
	}

	a, err := buildApp(cmd.Context(), harvestOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := fn(ctx, a.harvester)
	if result != nil {
		if perr := printResult(result, harvestFormat); perr != nil {
			return perr
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("harvest interrupted, partial results were saved")
			return nil
		}
		return err
	}
	return nil
}
