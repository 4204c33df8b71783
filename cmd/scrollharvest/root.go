package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pevans/scrollharvest/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scrollharvest",
	Short: "Harvest posts from an infinite-scroll feed",
	Long: `scrollharvest scrolls a rendered feed page and collects the cards it
shows, either every card published inside a date window or the first N
cards in feed order.

Example usage:
  scrollharvest window https://space.bilibili.com/123/dynamic 7天前 1天前
  scrollharvest first https://space.bilibili.com/123/dynamic 20
  scrollharvest runs list
  scrollharvest serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./scrollharvest.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads .env, the configuration and the process logger.
func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = cfg.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)

	logger.Debug("configuration loaded",
		"db_path", cfg.Storage.DBPath,
		"json_dir", cfg.Storage.JSONDir,
		"profile", cfg.Profile.Path,
		"headless", cfg.Browser.Headless,
	)

	return nil
}
