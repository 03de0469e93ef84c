package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arkilian/enginebench/internal/app"
	"github.com/arkilian/enginebench/internal/config"
	"github.com/arkilian/enginebench/internal/engine"
	"github.com/arkilian/enginebench/internal/errors"
)

// Flag names.
const (
	flagConfig            = "config"
	flagLibrary           = "library"
	flagDataRoot          = "data-root"
	flagCacheDir          = "cache-dir"
	flagCacheMaxBytes     = "cache-max-bytes"
	flagLogLevel          = "log-level"
	flagWarmups           = "benchmark-num-warmup-iterations"
	flagIterations        = "benchmark-iterations"
	flagMinTime           = "benchmark-min-time"
	flagVerbose           = "verbose-query-output"
	flagVeryVerbose       = "very-verbose-query-output"
	flagEnableConstraints = "enable-constraints"
	flagTPCH              = "tpch"
	flagTPCHClustered     = "tpch-clustered"
	flagSelectSelectivity = "select-selectivity"
	flagSelectRandomness  = "select-randomness"
	flagLiteralQ6         = "literal-q6"
	flagTPCHSizes         = "tpch-sizes"
	flagSweepRows         = "sweep-rows"
	flagSweepPoints       = "sweep-points"
	flagResultsDB         = "results-db"
	flagMetricsFile       = "metrics-file"
	flagUploadResults     = "upload-results"
)

// dotEnvFiles are loaded into the environment before it is read.
var dotEnvFiles = []string{".env"}

// RootCmd returns the enginebench command.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enginebench",
		Short: "enginebench benchmarks query engines on TPC-H and synthetic microbenchmarks.",
		Long: `enginebench benchmarks query engines on TPC-H and synthetic microbenchmarks.

Every query is piped through the engines named by --library, in order. Tables
are created and loaded through the first engine only. Without a suite flag only
the literal Q6 smoke case runs.

Configuration is read from --config (YAML or JSON), then from ENGINEBENCH_*
environment variables (a .env file in the working directory is honoured), then
from flags.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				log.WithFields(errors.Fields(err)).Error(err)
				return err
			}
			if err := run(cmd, cfg); err != nil {
				log.WithFields(errors.Fields(err)).Error(err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String(flagConfig, "", "Path to configuration file (YAML or JSON)")
	f.StringArray(flagLibrary, nil, fmt.Sprintf("Engine to pipe queries through; repeat for a pipeline (registered: %v)", engine.Registered()))
	f.String(flagDataRoot, "", "Directory or s3://bucket/prefix holding tpch_<size>MB/<table>.tbl files")
	f.String(flagCacheDir, "", "Directory receiving fetched and decompressed data files")
	f.Int64(flagCacheMaxBytes, 0, "Evict least used cached data files beyond this many bytes (0: unbounded)")
	f.String(flagLogLevel, "", "Log level (debug, info, warn, error)")
	f.Int(flagWarmups, 0, "Warmup iterations per case")
	f.Int(flagIterations, 0, "Minimum measured iterations per case")
	f.Duration(flagMinTime, 0, "Keep measuring until this much time has been measured")
	f.BoolP(flagVerbose, "v", false, "Log the projected output of every query once")
	f.Bool(flagVeryVerbose, false, "Log the full output of every query once (also -vv)")
	f.Bool(flagEnableConstraints, false, "Declare TPC-H primary and foreign keys after loading")
	f.Bool(flagTPCH, false, "Run TPC-H Q1, Q3, Q6, Q9 and Q18")
	f.Bool(flagTPCHClustered, false, "Run TPC-H Q6 over LINEITEM reordered with increasing spread")
	f.Bool(flagSelectSelectivity, false, "Run the selection selectivity sweep over uniform keys")
	f.Bool(flagSelectRandomness, false, "Run the selection sweep over partially sorted keys")
	f.Bool(flagLiteralQ6, false, "Run TPC-H Q6 over a literal four-row table")
	f.IntSlice(flagTPCHSizes, nil, "TPC-H dataset sizes in MB")
	f.Int(flagSweepRows, 0, "Rows of the synthetic sweep tables")
	f.Int(flagSweepPoints, 0, "Parameter values per sweep")
	f.String(flagResultsDB, "", "SQLite database receiving the measurements")
	f.String(flagMetricsFile, "", "File receiving the Prometheus text exposition")
	f.Bool(flagUploadResults, false, "Upload the results database to the configured object storage")

	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := a.Run(cmd.Context())
	failed := 0
	for _, r := range out {
		if r.Failed {
			failed++
		}
	}
	log.WithFields(log.Fields{
		"cases":   len(out),
		"failed":  failed,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("run finished")
	return err
}

// loadConfig builds the configuration from the file named by --config, the
// environment and the flags set on the command line, in increasing priority.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := flags.GetString(flagConfig); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.LoadDotEnv(dotEnvFiles...); err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)

	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}
	set(flagLibrary, func() (e error) { cfg.Libraries, e = flags.GetStringArray(flagLibrary); return })
	set(flagDataRoot, func() (e error) { cfg.DataRoot, e = flags.GetString(flagDataRoot); return })
	set(flagCacheDir, func() (e error) { cfg.CacheDir, e = flags.GetString(flagCacheDir); return })
	set(flagCacheMaxBytes, func() (e error) { cfg.CacheMaxBytes, e = flags.GetInt64(flagCacheMaxBytes); return })
	set(flagLogLevel, func() (e error) { cfg.LogLevel, e = flags.GetString(flagLogLevel); return })
	set(flagWarmups, func() (e error) { cfg.Bench.WarmupIterations, e = flags.GetInt(flagWarmups); return })
	set(flagIterations, func() (e error) { cfg.Bench.Iterations, e = flags.GetInt(flagIterations); return })
	set(flagMinTime, func() (e error) { cfg.Bench.MinTime, e = flags.GetDuration(flagMinTime); return })
	set(flagVerbose, func() (e error) { cfg.Bench.VerboseOutput, e = flags.GetBool(flagVerbose); return })
	set(flagVeryVerbose, func() (e error) { cfg.Bench.VeryVerboseOutput, e = flags.GetBool(flagVeryVerbose); return })
	set(flagEnableConstraints, func() (e error) { cfg.Bench.EnableConstraints, e = flags.GetBool(flagEnableConstraints); return })
	set(flagTPCH, func() (e error) { cfg.Suites.TPCH, e = flags.GetBool(flagTPCH); return })
	set(flagTPCHClustered, func() (e error) { cfg.Suites.TPCHClustered, e = flags.GetBool(flagTPCHClustered); return })
	set(flagSelectSelectivity, func() (e error) { cfg.Suites.SelectSelectivity, e = flags.GetBool(flagSelectSelectivity); return })
	set(flagSelectRandomness, func() (e error) { cfg.Suites.SelectRandomness, e = flags.GetBool(flagSelectRandomness); return })
	set(flagLiteralQ6, func() (e error) { cfg.Suites.LiteralQ6, e = flags.GetBool(flagLiteralQ6); return })
	set(flagTPCHSizes, func() (e error) { cfg.Suites.TPCHSizes, e = flags.GetIntSlice(flagTPCHSizes); return })
	set(flagSweepRows, func() (e error) { cfg.Suites.SweepRows, e = flags.GetInt(flagSweepRows); return })
	set(flagSweepPoints, func() (e error) { cfg.Suites.SweepPoints, e = flags.GetInt(flagSweepPoints); return })
	set(flagResultsDB, func() (e error) { cfg.Results.DatabasePath, e = flags.GetString(flagResultsDB); return })
	set(flagMetricsFile, func() (e error) { cfg.Results.MetricsFile, e = flags.GetString(flagMetricsFile); return })
	set(flagUploadResults, func() (e error) { cfg.Results.Upload, e = flags.GetBool(flagUploadResults); return })
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeArgs rewrites the -vv shorthand, which pflag cannot express, to
// its long form.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-vv" {
			a = "--" + flagVeryVerbose
		}
		out[i] = a
	}
	return out
}
