// Package config loads scrollharvest settings from an optional YAML file,
// SCROLLHARVEST_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pevans/scrollharvest/browser"
	"github.com/pevans/scrollharvest/harvest"
	"github.com/pevans/scrollharvest/timelabel"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SCROLLHARVEST"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	Time    TimeConfig    `mapstructure:"time"`
	Storage StorageConfig `mapstructure:"storage"`
	Profile ProfileConfig `mapstructure:"profile"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrowserConfig controls the live Chrome session.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"`
	UserDataDir     string        `mapstructure:"user_data_dir"`
	ExecPath        string        `mapstructure:"exec_path"`
	WindowWidth     int           `mapstructure:"window_width"`
	WindowHeight    int           `mapstructure:"window_height"`
	UserAgent       string        `mapstructure:"user_agent"`
	LoadDwell       time.Duration `mapstructure:"load_dwell"`
	CommandInterval time.Duration `mapstructure:"command_interval"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
}

// HarvestConfig holds round limits and scroll pacing.
type HarvestConfig struct {
	MaxRounds       int            `mapstructure:"max_rounds"`
	FirstNMaxRounds int            `mapstructure:"first_n_max_rounds"`
	WindowPacing    harvest.Pacing `mapstructure:"window_pacing"`
	FirstNPacing    harvest.Pacing `mapstructure:"first_n_pacing"`
	// SettlePolls and SettleInterval apply to both pacings.
	SettlePolls    int           `mapstructure:"settle_polls"`
	SettleInterval time.Duration `mapstructure:"settle_interval"`
}

// TimeConfig controls time label normalization.
type TimeConfig struct {
	ExtendedLabels bool   `mapstructure:"extended_labels"`
	YearPolicy     string `mapstructure:"year_policy"`
	Timezone       string `mapstructure:"timezone"`
}

// StorageConfig names where results go. Empty JSONDir and ReportPath
// disable those outputs.
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	JSONDir    string `mapstructure:"json_dir"`
	ReportPath string `mapstructure:"report_path"`
}

// ProfileConfig points at a selector profile. Empty uses the built-in one.
type ProfileConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration. When cfgFile is empty, scrollharvest.yaml
// is searched for in the working directory and $HOME/.config/scrollharvest;
// a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("scrollharvest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "scrollharvest"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	b := browser.DefaultCDPOptions()
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.window_width", b.WindowWidth)
	v.SetDefault("browser.window_height", b.WindowHeight)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.load_dwell", b.LoadDwell)
	v.SetDefault("browser.command_interval", b.CommandInterval)
	v.SetDefault("browser.command_timeout", b.CommandTimeout)

	h := harvest.DefaultHarvestConfig()
	v.SetDefault("harvest.max_rounds", h.WindowMaxRounds)
	v.SetDefault("harvest.first_n_max_rounds", h.FirstNMaxRounds)
	setPacingDefaults(v, "harvest.window_pacing", h.WindowPacing)
	setPacingDefaults(v, "harvest.first_n_pacing", h.FirstNPacing)
	v.SetDefault("harvest.settle_polls", 0)
	v.SetDefault("harvest.settle_interval", time.Second)

	v.SetDefault("time.extended_labels", false)
	v.SetDefault("time.year_policy", string(timelabel.YearCurrent))
	v.SetDefault("time.timezone", "Local")

	v.SetDefault("storage.db_path", "scrollharvest.db")
	v.SetDefault("storage.json_dir", "")
	v.SetDefault("storage.report_path", "")

	v.SetDefault("profile.path", "")

	v.SetDefault("server.port", "8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func setPacingDefaults(v *viper.Viper, prefix string, p harvest.Pacing) {
	v.SetDefault(prefix+".margin", p.Margin)
	v.SetDefault(prefix+".fallback", p.Fallback)
	v.SetDefault(prefix+".dwell", p.Dwell)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Harvest.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("harvest.max_rounds must be at least 1, got %d", c.Harvest.MaxRounds))
	}
	if c.Harvest.FirstNMaxRounds < 1 {
		errs = append(errs, fmt.Errorf("harvest.first_n_max_rounds must be at least 1, got %d", c.Harvest.FirstNMaxRounds))
	}
	if c.Harvest.SettlePolls < 0 {
		errs = append(errs, errors.New("harvest.settle_polls must not be negative"))
	}
	for name, p := range map[string]harvest.Pacing{
		"window_pacing":  c.Harvest.WindowPacing,
		"first_n_pacing": c.Harvest.FirstNPacing,
	} {
		if p.Margin < 0 || p.Fallback < 1 || p.Dwell < 0 {
			errs = append(errs, fmt.Errorf("harvest.%s: margin and dwell must not be negative and fallback must be positive", name))
		}
	}

	if _, err := timelabel.ParseYearPolicy(c.Time.YearPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Location resolves time.timezone. "Local" and "" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	switch c.Time.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Time.Timezone)
	if err != nil {
		return nil, fmt.Errorf("time.timezone %q: %w", c.Time.Timezone, err)
	}
	return loc, nil
}

// Normalizer builds the time label normalizer described by the config.
func (c *Config) Normalizer() (*timelabel.Normalizer, error) {
	policy, err := timelabel.ParseYearPolicy(c.Time.YearPolicy)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	n := timelabel.New()
	n.Location = loc
	n.Extended = c.Time.ExtendedLabels
	n.YearPolicy = policy
	return n, nil
}

// HarvestSettings converts the harvest section for harvest.NewHarvester.
func (c *Config) HarvestSettings() *harvest.HarvestConfig {
	window := c.Harvest.WindowPacing
	firstN := c.Harvest.FirstNPacing
	for _, p := range []*harvest.Pacing{&window, &firstN} {
		p.SettlePolls = c.Harvest.SettlePolls
		p.SettleInterval = c.Harvest.SettleInterval
	}

	return &harvest.HarvestConfig{
		WindowMaxRounds: c.Harvest.MaxRounds,
		FirstNMaxRounds: c.Harvest.FirstNMaxRounds,
		WindowPacing:    window,
		FirstNPacing:    firstN,
	}
}

// CDPOptions converts the browser section for browser.NewCDPSession.
func (c *Config) CDPOptions() (browser.CDPOptions, error) {
	loc, err := c.Location()
	if err != nil {
		return browser.CDPOptions{}, err
	}

	return browser.CDPOptions{
		Headless:        c.Browser.Headless,
		UserDataDir:     c.Browser.UserDataDir,
		ExecPath:        c.Browser.ExecPath,
		WindowWidth:     c.Browser.WindowWidth,
		WindowHeight:    c.Browser.WindowHeight,
		UserAgent:       c.Browser.UserAgent,
		LoadDwell:       c.Browser.LoadDwell,
		CommandInterval: c.Browser.CommandInterval,
		CommandTimeout:  c.Browser.CommandTimeout,
		Location:        loc,
	}, nil
}

// NewLogger builds a slog logger writing to w. verbose forces debug level.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return level, nil
}
