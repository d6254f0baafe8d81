// Package cmd provides CLI command implementations for cegar-go.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Benny93/cegar-go/internal/config"
	"github.com/Benny93/cegar-go/internal/engine"
	"github.com/Benny93/cegar-go/internal/storage"
	"github.com/Benny93/cegar-go/internal/watch"
	"github.com/Benny93/cegar-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// defaultConfigFile is read when --config is not given and it exists.
const defaultConfigFile = ".cegar.yaml"

var errChecksFailed = errors.New("some checks failed")

// Globals are the flags every command shares.
type Globals struct {
	Config  string `short:"c" type:"path" env:"CEGAR_CONFIG" help:"Config file (YAML)"`
	DB      string `placeholder:"PATH" help:"Run history database, overrides db_path"`
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`

	out io.Writer
	in  io.Reader
}

// SearchFlags override the search settings of the config file.
type SearchFlags struct {
	Search        string `help:"Abstractor: bfs, dfs or astar"`
	Policy        string `help:"A* heuristic policy: full, decreasing or ondemand"`
	Stop          string `help:"Stop criterion: first-cex, full or at-least-n"`
	StopCount     int    `help:"Counterexamples to collect for at-least-n"`
	MaxIterations int    `default:"-1" help:"Iteration cap, 0 for none (default: from config)"`
	Parallel      int    `short:"j" help:"Models checked at once"`
}

func (f SearchFlags) apply(c *config.Config) {
	if f.Search != "" {
		c.Search = f.Search
	}
	if f.Policy != "" {
		c.Policy = f.Policy
	}
	if f.Stop != "" {
		c.Stop = f.Stop
	}
	if f.StopCount > 0 {
		c.StopCount = f.StopCount
	}
	if f.MaxIterations >= 0 {
		c.MaxIterations = f.MaxIterations
	}
	if f.Parallel > 0 {
		c.Parallel = f.Parallel
	}
}

// CheckCmd checks model files once.
type CheckCmd struct {
	Paths []string `arg:"" type:"path" help:"Model files or directories"`
	SearchFlags

	MetricsAddr string `placeholder:"ADDR" help:"Serve Prometheus metrics on this address while checking"`
	PrintARG    bool   `name:"print-arg" help:"Print the ARG after every iteration"`
}

// Run executes the check command.
func (c *CheckCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-osSignalChannel():
			cancel()
		case <-ctx.Done():
		}
	}()

	return c.run(ctx, g)
}

func (c *CheckCmd) run(ctx context.Context, g *Globals) error {
	cfg, err := g.load(func(cfg *config.Config) {
		c.apply(cfg)
		if c.MetricsAddr != "" {
			cfg.MetricsAddr = c.MetricsAddr
		}
	})
	if err != nil {
		return err
	}
	logger := g.logger(cfg)

	paths, err := modelPaths(c.Paths)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, logger)
		defer stop()
	}

	opts := []engine.Option{engine.WithStore(store), engine.WithLogger(logger)}
	if c.PrintARG {
		opts = append(opts, engine.WithARGOutput(g.stdout()))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return err
	}

	records, err := eng.CheckAll(ctx, paths)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w := g.stdout()
	for _, rec := range records {
		printRun(w, rec, !g.Quiet)
	}
	if !g.Quiet {
		printSummary(w, records)
	}
	if err != nil {
		return errChecksFailed
	}
	return nil
}

// WatchCmd re-checks models whenever they change.
type WatchCmd struct {
	Dir string `arg:"" optional:"" default:"." type:"existingdir" help:"Directory to watch"`
	SearchFlags

	Debounce time.Duration `default:"2s" help:"Quiet period before re-checking"`

	ready chan<- struct{}
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	go func() {
		select {
		case <-osSignalChannel():
			fmt.Fprintln(g.stdout(), "\nStopping watch mode...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := c.run(ctx, g); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}
	fmt.Fprintln(g.stdout(), "Watch mode stopped.")
	return nil
}

func (c *WatchCmd) run(ctx context.Context, g *Globals) error {
	cfg, err := g.load(c.apply)
	if err != nil {
		return err
	}
	logger := g.logger(cfg)

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := engine.New(cfg, engine.WithStore(store), engine.WithLogger(logger))
	if err != nil {
		return err
	}

	w := g.stdout()
	check := func(ctx context.Context, paths []string) {
		records, _ := eng.CheckAll(ctx, paths)
		for _, rec := range records {
			if rec != nil {
				printRun(w, rec, !g.Quiet)
			}
		}
	}

	paths, err := watch.Models(c.Dir)
	if err != nil {
		return err
	}
	check(ctx, paths)

	fmt.Fprintf(w, "Watching %s for changes (Ctrl+C to stop)\n\n", c.Dir)
	return watch.Watch(ctx, c.Dir, watch.Options{
		Debounce: c.Debounce,
		Logger:   logger,
		Ready:    c.ready,
	}, check)
}

// HistoryCmd lists recorded runs.
type HistoryCmd struct {
	Limit int  `short:"n" default:"20" help:"Maximum runs (0 for all)"`
	JSON  bool `help:"Print runs as JSON"`
}

// Run executes the history command.
func (c *HistoryCmd) Run(g *Globals) error {
	ctx := context.Background()
	cfg, err := g.load(nil)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(ctx, c.Limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	w := g.stdout()
	if c.JSON {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-8s %-24s %d iterations\n",
			r.ShortID(), r.CreatedAt.Local().Format(time.DateTime), r.Outcome, r.Model, r.Iterations)
	}
	return nil
}

// ShowCmd prints one recorded run.
type ShowCmd struct {
	ID   string `arg:"" help:"Run id or a unique prefix of it"`
	JSON bool   `help:"Print the run as JSON"`
}

// Run executes the show command.
func (c *ShowCmd) Run(g *Globals) error {
	ctx := context.Background()
	cfg, err := g.load(nil)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rec, err := store.GetRun(ctx, c.ID)
	if err != nil {
		return err
	}

	w := g.stdout()
	if c.JSON {
		return writeJSON(w, rec)
	}
	printRun(w, rec, true)
	fmt.Fprintf(w, "  Run:        %s\n", rec.ID)
	fmt.Fprintf(w, "  Checked:    %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Search:     %s/%s, stop %s\n", rec.Config.Search, rec.Config.Policy, rec.Config.Stop)
	fmt.Fprintf(w, "  Time:       %s (abstraction %s, refinement %s)\n", rec.Total, rec.Abstractor, rec.Refiner)
	for _, st := range rec.Steps {
		fmt.Fprintf(w, "  #%d %-9s arg %d, unsafe %d, depth %d\n", st.Index, st.Outcome, st.ARGSize, st.Unsafe, st.Depth)
	}
	return nil
}

// CleanCmd deletes the run history.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	ctx := context.Background()
	cfg, err := g.load(nil)
	if err != nil {
		return err
	}
	if cfg.DBPath == "" {
		return errors.New("no run history database configured. Nothing to clean")
	}
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		return fmt.Errorf("no run history at %s. Nothing to clean", cfg.DBPath)
	}

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := g.stdout()
	if !c.Force {
		runs, err := store.ListRuns(ctx, 0)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		fmt.Fprintf(w, "Delete %d runs at %s? [y/N] ", len(runs), cfg.DBPath)
		var response string
		_, _ = fmt.Fscanln(g.stdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted")
			return nil
		}
	}

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("deleting runs: %w", err)
	}
	color.New(color.FgGreen).Fprintf(w, "Deleted run history at %s\n", cfg.DBPath)
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct {
	SearchFlags
}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-osSignalChannel():
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := g.load(c.apply)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Logs go to stderr: stdout carries JSON-RPC only
	eng, err := engine.New(cfg, engine.WithStore(store), engine.WithLogger(g.logger(cfg)))
	if err != nil {
		return err
	}
	server := mcp.NewServer(eng, store)

	err = server.Run(ctx, g.stdin(), g.stdout())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Helper functions

func (g *Globals) stdout() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

func (g *Globals) stdin() io.Reader {
	if g.in == nil {
		return os.Stdin
	}
	return g.in
}

// load reads the config file and environment and applies the command-line
// overrides on top.
func (g *Globals) load(override func(*config.Config)) (config.Config, error) {
	path := g.Config
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if g.DB != "" {
		cfg.DBPath = g.DB
	}
	if override != nil {
		override(&cfg)
	}
	if g.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func (g *Globals) logger(cfg config.Config) *slog.Logger {
	level := cfg.Level()
	if g.Quiet && !g.Verbose {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens the run history named by cfg. An empty path keeps
// history in memory. A read-only open of a missing database gives an empty
// store.
func openStore(cfg config.Config, readOnly bool) (storage.StorageBackend, error) {
	if cfg.DBPath == "" {
		return storage.NewMemoryBackend(), nil
	}
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		if readOnly {
			return storage.NewMemoryBackend(), nil
		}
		if err := os.MkdirAll(cfg.DBPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", cfg.DBPath, err)
		}
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(cfg.DBPath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// modelPaths expands directories into the model files below them.
func modelPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		found, err := watch.Models(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no model files found in %s", strings.Join(args, ", "))
	}
	return paths, nil
}

// serveMetrics exposes the Prometheus registry until the returned func is
// called.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// printRun writes one line per run, plus the counterexample of unsafe runs
// when detailed.
func printRun(w io.Writer, r *storage.RunRecord, detailed bool) {
	name := r.ModelPath
	if name == "" {
		name = r.Model
	} else if rel, err := filepath.Rel(".", name); err == nil && !strings.HasPrefix(rel, "..") {
		name = rel
	}

	switch r.Outcome {
	case "safe":
		color.New(color.FgGreen, color.Bold).Fprint(w, "✓ SAFE  ")
	case "unsafe":
		color.New(color.FgRed, color.Bold).Fprint(w, "✗ UNSAFE")
	default:
		color.New(color.FgYellow, color.Bold).Fprint(w, "! ERROR ")
	}
	fmt.Fprintf(w, " %s", name)
	if r.Outcome == "safe" || r.Outcome == "unsafe" {
		fmt.Fprintf(w, "  (%d iterations, prec %s, %s)", r.Iterations, r.Prec, r.Total.Round(time.Microsecond))
	}
	if r.ID != "" {
		fmt.Fprintf(w, "  [%s]", r.ShortID())
	}
	fmt.Fprintln(w)

	if r.Error != "" {
		fmt.Fprintf(w, "    %s\n", r.Error)
	}
	if detailed && len(r.Cex) > 0 {
		fmt.Fprintln(w, "    counterexample:")
		for i, st := range r.Cex {
			fmt.Fprintf(w, "      %d: %s\n", i, st)
		}
	}
}

func printSummary(w io.Writer, records []*storage.RunRecord) {
	counts := map[string]int{}
	for _, r := range records {
		if r != nil {
			counts[r.Outcome]++
		}
	}
	fmt.Fprintf(w, "\n%d models: %d safe, %d unsafe, %d failed\n",
		len(records), counts["safe"], counts["unsafe"], counts["error"])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Check   CheckCmd   `cmd:"" help:"Check whether the error location of models is reachable"`
	Watch   WatchCmd   `cmd:"" help:"Watch mode with live re-checking"`
	History HistoryCmd `cmd:"" help:"List recorded runs"`
	Show    ShowCmd    `cmd:"" help:"Show a recorded run"`
	Clean   CleanCmd   `cmd:"" help:"Delete the run history"`
	MCP     MCPCmd     `cmd:"" help:"Start MCP server (stdio transport)"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("cegar-go"),
		kong.Description("Counterexample-guided abstraction refinement for explicit-value models"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
		kong.Bind(&c.Globals),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run()
}
