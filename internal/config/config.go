// Package config holds the settings of a cegar-go run.
//
// Settings come from three layers, each overriding the previous one:
// built-in defaults, an optional YAML file, and CEGAR_* environment
// variables. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid config")

var (
	searches = []string{"bfs", "dfs", "astar"}
	policies = []string{"full", "decreasing", "ondemand"}
	stops    = []string{"first-cex", "full", "at-least-n"}
	levels   = []string{"debug", "info", "warn", "error"}
)

// Config selects the search strategy and the surroundings of a check.
type Config struct {
	// Search is the abstractor: bfs, dfs or astar.
	Search string `yaml:"search" json:"search"`

	// Policy is the A* heuristic policy: full, decreasing or ondemand.
	Policy string `yaml:"policy" json:"policy"`

	// Stop is the stop criterion: first-cex, full or at-least-n.
	Stop string `yaml:"stop" json:"stop"`

	// StopCount is n for at-least-n.
	StopCount int `yaml:"stop_count" json:"stop_count"`

	// MaxIterations caps the CEGAR loop; 0 means unlimited.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// DBPath is the run-history database. Empty keeps history in memory.
	DBPath string `yaml:"db_path" json:"db_path"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// MetricsAddr, if set, serves Prometheus metrics during a check.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	// Parallel is how many models are checked at once.
	Parallel int `yaml:"parallel" json:"parallel"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Search:    "astar",
		Policy:    "full",
		Stop:      "first-cex",
		StopCount: 1,
		DBPath:    ".cegar/history",
		LogLevel:  "info",
		Parallel:  4,
	}
}

// Load returns the defaults overlaid with the file at path, if path is not
// empty, and with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CEGAR_SEARCH":       &c.Search,
		"CEGAR_POLICY":       &c.Policy,
		"CEGAR_STOP":         &c.Stop,
		"CEGAR_DB_PATH":      &c.DBPath,
		"CEGAR_LOG_LEVEL":    &c.LogLevel,
		"CEGAR_METRICS_ADDR": &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"CEGAR_STOP_COUNT":     &c.StopCount,
		"CEGAR_MAX_ITERATIONS": &c.MaxIterations,
		"CEGAR_PARALLEL":       &c.Parallel,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports every bad setting at once.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed []string) {
		if !slices.Contains(allowed, v) {
			errs = append(errs, fmt.Errorf("%s %q not one of %s", field, v, strings.Join(allowed, ", ")))
		}
	}
	oneOf("search", c.Search, searches)
	oneOf("policy", c.Policy, policies)
	oneOf("stop", c.Stop, stops)
	oneOf("log_level", c.LogLevel, levels)
	if c.Stop == "at-least-n" && c.StopCount < 1 {
		errs = append(errs, fmt.Errorf("stop_count must be positive, got %d", c.StopCount))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must not be negative, got %d", c.MaxIterations))
	}
	if c.Parallel < 1 {
		errs = append(errs, fmt.Errorf("parallel must be positive, got %d", c.Parallel))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Level maps LogLevel to a slog level. Unknown names give Info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
