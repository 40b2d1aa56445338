package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"netpath-verifier/internal/invariant"
	"netpath-verifier/internal/model"
	"netpath-verifier/internal/parser"
	"netpath-verifier/internal/store"
	"netpath-verifier/internal/topology"
)

// config is the resolved set of options, from flags, config file or
// NETPATH_* environment variables.
type config struct {
	Network     string
	Invariants  string
	Provider    string
	DB          string
	Out         string
	Workers     int
	LogLevel    string
	LogFile     string
	DotDir      string
	StoreDriver string
	StoreDSN    string
	Probes      string
	Report      string
}

func loadConfig(v *viper.Viper) (*config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return &config{
		Network:     v.GetString("network"),
		Invariants:  v.GetString("invariants"),
		Provider:    v.GetString("provider"),
		DB:          v.GetString("db"),
		Out:         v.GetString("out"),
		Workers:     v.GetInt("workers"),
		LogLevel:    v.GetString("log-level"),
		LogFile:     v.GetString("log-file"),
		DotDir:      v.GetString("dot-dir"),
		StoreDriver: v.GetString("store-driver"),
		StoreDSN:    v.GetString("store-dsn"),
		Probes:      v.GetString("probes"),
		Report:      v.GetString("report"),
	}, nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("NETPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "netpath-verifier",
		Short: "Compile network path invariants into switch rules",
		Long: `netpath-verifier reads a topology export and a list of path invariants
	and compiles them into per-switch match-action rules that flag packets
	taking a forbidden path.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, json or toml)")
	flags.String("network", "network.json", "Topology export (network.json)")
	flags.String("invariants", "", "Invariant list file (for 'file' provider)")
	flags.String("provider", "file", "Invariant provider: 'file' or 'mariadb'")
	flags.String("db", "", "Database connection string (for 'mariadb' provider)")
	flags.IntP("workers", "w", runtime.NumCPU(), "Number of concurrent compile workers")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-file", "", "Log file path, rotated (default: stderr)")

	rootCmd.Flags().String("out", "plan.json", "Output install plan")
	rootCmd.Flags().String("dot-dir", "", "Write automaton diagrams of regex invariants to this directory")
	rootCmd.Flags().String("store-driver", "sqlite3", "Plan store driver: 'sqlite3' or 'mysql'")
	rootCmd.Flags().String("store-dsn", "", "Plan store data source; the plan is only stored when set")

	v.BindPFlags(flags)
	v.BindPFlags(rootCmd.Flags())

	rootCmd.AddCommand(newCheckCmd(v))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config) error {
	slog.SetDefault(setupLogger(cfg.LogLevel, cfg.LogFile))
	slog.Info("Starting netpath-verifier compiler")
	startTime := time.Now()

	net, invs, err := loadInputs(ctx, cfg)
	if err != nil {
		return err
	}

	plan := buildPlan(net, invs, cfg.Workers)
	for _, f := range plan.Failures {
		slog.Error("Invariant failed to compile", "id", f.ID, "name", f.Name, "error", f.Error)
	}

	if cfg.DotDir != "" {
		if err := writeDiagrams(net, invs, cfg.DotDir); err != nil {
			return err
		}
	}

	if err := writePlan(cfg.Out, plan); err != nil {
		slog.Error("Failed to write plan", "path", cfg.Out, "error", err)
		return err
	}
	if cfg.StoreDSN != "" {
		if err := storePlan(ctx, cfg.StoreDriver, cfg.StoreDSN, plan); err != nil {
			slog.Error("Failed to store plan", "driver", cfg.StoreDriver, "error", err)
			return err
		}
	}

	slog.Info("Compilation complete",
		"invariants", len(invs),
		"failures", len(plan.Failures),
		"border_rules", plan.Border.Count(),
		"invariant_rules", plan.Invariants.Count(),
		"output_file", cfg.Out,
		"duration", time.Since(startTime))
	return nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		logWriter = &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 7,
			Compress:   true,
		}
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

// loadInputs reads the topology and the invariants of the configured
// provider. Device groups stored with the invariants extend the topology.
func loadInputs(ctx context.Context, cfg *config) (*topology.Network, []invariant.Invariant, error) {
	file, err := os.Open(cfg.Network)
	if err != nil {
		slog.Error("Failed to open network file", "path", cfg.Network, "error", err)
		return nil, nil, err
	}
	defer file.Close()
	raw, err := parser.ParseNetwork(file)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("Loading invariants...", "provider", cfg.Provider)
	specs, groups, err := loadInvariants(ctx, cfg.Provider, cfg.Invariants, cfg.DB)
	if err != nil {
		slog.Error("Failed to load invariants", "error", err)
		return nil, nil, err
	}
	if len(groups) > 0 {
		if raw.Groups == nil {
			raw.Groups = make(map[string][]string)
		}
		for name, members := range groups {
			raw.Groups[name] = members
		}
	}

	net, err := topology.New(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid topology: %w", err)
	}
	invs, err := invariant.FromSpecs(specs)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Successfully loaded inputs",
		"switches", len(net.SwitchNames()),
		"hosts", len(net.HostNames()),
		"invariants", len(invs))
	return net, invs, nil
}

func loadInvariants(ctx context.Context, provider, path, dsn string) ([]model.InvariantSpec, map[string][]string, error) {
	switch provider {
	case "file":
		if path == "" {
			return nil, nil, fmt.Errorf("invariants file path must be provided for file provider")
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer file.Close()
		specs, err := parser.ParseInvariants(file, parser.FormatFromPath(path))
		return specs, nil, err
	case "mariadb":
		if dsn == "" {
			return nil, nil, fmt.Errorf("database connection string must be provided for mariadb provider")
		}
		p, err := parser.NewMariaDBProvider(dsn)
		if err != nil {
			return nil, nil, err
		}
		defer p.Close()
		if err := p.Load(ctx); err != nil {
			return nil, nil, err
		}
		return p.Invariants, p.Groups, nil
	default:
		return nil, nil, fmt.Errorf("unknown invariant provider: %s", provider)
	}
}

// buildPlan compiles every invariant in a worker pool and assembles the
// install plan.
func buildPlan(net *topology.Network, invs []invariant.Invariant, workers int) *invariant.Plan {
	if workers < 1 {
		workers = 1
	}
	tasks := make(chan invariant.Invariant, len(invs))
	results := make(chan invariant.Result, len(invs))
	var wg sync.WaitGroup

	slog.Info("Starting compile workers", "count", workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(&wg, i+1, net, tasks, results)
	}
	for _, inv := range invs {
		tasks <- inv
	}
	close(tasks)
	wg.Wait()
	close(results)

	collected := make([]invariant.Result, 0, len(invs))
	for res := range results {
		collected = append(collected, res)
	}
	border := invariant.BorderRules(net, invariant.NeedsTrace(invs))
	return invariant.NewPlan(border, collected, invariant.NewTracker())
}

func worker(wg *sync.WaitGroup, id int, net *topology.Network, tasks <-chan invariant.Invariant, results chan<- invariant.Result) {
	defer wg.Done()
	slog.Debug("Worker started", "id", id)
	for inv := range tasks {
		start := time.Now()
		rules, err := invariant.Compile(inv, net)
		slog.Debug("Compiled invariant",
			"worker", id,
			"invariant", inv.Name(),
			"type", inv.Type(),
			"rules", rules.Count(),
			"duration", time.Since(start))
		results <- invariant.Result{ID: inv.ID(), Name: inv.Name(), Rules: rules, Err: err}
	}
	slog.Debug("Worker finished", "id", id)
}

func writeDiagrams(net *topology.Network, invs []invariant.Invariant, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, inv := range invs {
		r, ok := inv.(*invariant.RegexInvariant)
		if !ok {
			continue
		}
		if err := r.WriteDiagrams(net, dir); err != nil {
			// Compile failures are already reported in the plan.
			slog.Warn("Skipping automaton diagrams", "invariant", r.Name(), "error", err)
		}
	}
	return nil
}

func writePlan(path string, plan *invariant.Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func storePlan(ctx context.Context, driver, dsn string, plan *invariant.Plan) error {
	s, err := store.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	if err := s.SavePlan(ctx, plan); err != nil {
		return err
	}
	slog.Info("Stored plan", "driver", driver, "rules", plan.RuleCount())
	return nil
}
