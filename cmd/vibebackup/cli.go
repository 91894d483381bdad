// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tomtom215/vibebackup/internal/backup"
	"github.com/tomtom215/vibebackup/internal/config"
	"github.com/tomtom215/vibebackup/internal/logging"
)

// Process exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitLocked = 2
)

// options are the parsed command line flags
type options struct {
	command    string
	args       []string
	configPath string
	runAll     bool
	jsonOutput bool
	logLevel   string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	flagSet := pflag.NewFlagSet("vibebackup", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flagSet.BoolVar(&opts.runAll, "run-all", false, "consolidate the current month and year regardless of date")
	flagSet.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: vibebackup [flags] [run|serve|sweep|verify FILE|list|version]\n\n") //nolint:errcheck // Usage output
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	rest := flagSet.Args()
	opts.command = "run"
	if len(rest) > 0 {
		opts.command, opts.args = rest[0], rest[1:]
	}

	switch opts.command {
	case "run", "serve", "sweep", "list", "version":
		if len(opts.args) > 0 {
			return nil, fmt.Errorf("%s takes no arguments", opts.command)
		}
	case "verify":
		if len(opts.args) != 1 {
			return nil, fmt.Errorf("verify takes exactly one archive path")
		}
	default:
		return nil, fmt.Errorf("unknown command %q", opts.command)
	}

	return opts, nil
}

// run is main without os.Exit
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "vibebackup: %v\n", err) //nolint:errcheck // Diagnostic output
		return exitFailed
	}

	if opts.command == "version" {
		fmt.Fprintf(stdout, "vibebackup %s\n", version) //nolint:errcheck // Command output
		return exitOK
	}

	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "vibebackup: %v\n", err) //nolint:errcheck // Logger not configured yet
		return exitFailed
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = stderr
	if err := logging.Init(logCfg); err != nil {
		fmt.Fprintf(stderr, "vibebackup: %v\n", err) //nolint:errcheck // Logger not configured yet
		return exitFailed
	}
	defer logging.Close() //nolint:errcheck // Best effort on exit

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.HasSources() && (opts.command == "run" || opts.command == "serve") {
		logging.Warn().Msg("No sources configured; runs will only consolidate and sweep")
	}

	engine, err := backup.NewEngine(cfg.BackupConfig(), cfg.SourceLister())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create backup engine")
		return exitFailed
	}

	switch opts.command {
	case "serve":
		return serveCommand(ctx, cfg, engine)
	case "verify":
		return verifyCommand(engine, opts.args[0], opts.jsonOutput, stdout)
	case "list":
		return listCommand(ctx, engine, opts.jsonOutput, stdout)
	default:
		runOpts := backup.RunOptions{ForceAll: opts.runAll, SweepOnly: opts.command == "sweep"}
		return runCommand(ctx, cfg, engine, runOpts, opts.jsonOutput, stdout)
	}
}
