// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/lspbridge/pkg/logging"
	"github.com/AleutianAI/lspbridge/pkg/ux"
	"github.com/AleutianAI/lspbridge/services/editor/config"
	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/AleutianAI/lspbridge/services/editor/telemetry"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags.
type globalOptions struct {
	configPath string
	root       string
	server     string
	logLevel   string
	logFormat  string
	traces     string
	metrics    string
	timeout    time.Duration
}

// app holds what every command shares once setup has run.
type app struct {
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer

	cfg       config.LSPBridgeConfig
	clientCfg lsp.ClientConfig
	logger    *logging.Logger
	printer   *ux.Printer

	// launcher is nil outside tests, meaning lsp.ExecLauncher.
	launcher lsp.Launcher

	shutdownTelemetry func(context.Context) error
	setUp             bool
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lspbridge",
		Short: "Drive a language server from the command line",
		Long: `lspbridge starts a language server for a project, syncs files to it and
prints what it answers: diagnostics, definitions, completions and renames.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "configuration file (default ~/.lspbridge/lspbridge.yaml)")
	f.StringVar(&a.opts.root, "root", "", "workspace root (default: detected from the first file)")
	f.StringVar(&a.opts.server, "server", "", "server command line, replacing the configured list")
	f.StringVar(&a.opts.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	f.StringVar(&a.opts.logFormat, "log-format", "", "auto, text or json (default from config)")
	f.StringVar(&a.opts.traces, "traces", "", "trace exporter: none, stdout or otlp (default $OTEL_TRACES_EXPORTER)")
	f.StringVar(&a.opts.metrics, "metrics", "", "metric exporter: none, stdout or prometheus (default $OTEL_METRICS_EXPORTER)")
	f.DurationVar(&a.opts.timeout, "timeout", 15*time.Second, "how long to wait for the server to start and answer")

	cmd.AddCommand(
		newDiagnosticsCmd(a),
		newDefinitionCmd(a),
		newCompleteCmd(a),
		newRenameCmd(a),
		newWatchCmd(a),
	)
	return cmd
}

// setup loads configuration and builds the logger, telemetry and printer.
func (a *app) setup(ctx context.Context) error {
	if a.setUp {
		return nil
	}
	a.printer = ux.NewPrinter(a.stdout, a.stderr)

	cfg, created, err := config.Load(a.opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(firstNonEmpty(a.opts.logLevel, cfg.Log.Level))
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(firstNonEmpty(a.opts.logFormat, cfg.Log.Format))
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		Format:  format,
		Output:  a.stderr,
		LogDir:  cfg.Log.Dir,
		Service: "lspbridge",
	})
	if created {
		a.logger.Slog().Info("created default configuration", slog.String("path", a.configPathForDisplay()))
	}

	a.clientCfg, err = clientConfig(cfg, a.opts.server)
	if err != nil {
		return err
	}

	tcfg := telemetry.DefaultConfig()
	if a.opts.traces != "" {
		tcfg.TraceExporter = a.opts.traces
	}
	if a.opts.metrics != "" {
		tcfg.MetricExporter = a.opts.metrics
	}
	tcfg.Output = a.stderr
	a.shutdownTelemetry, err = telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}

	a.setUp = true
	return nil
}

// clientConfig converts the file configuration and applies --server.
func clientConfig(cfg config.LSPBridgeConfig, server string) (lsp.ClientConfig, error) {
	out, err := cfg.ToClientConfig()
	if err != nil {
		return lsp.ClientConfig{}, fmt.Errorf("config: %w", err)
	}
	if server != "" {
		argv, err := lsp.SplitCommandLine(server)
		if err != nil || len(argv) == 0 {
			return lsp.ClientConfig{}, fmt.Errorf("invalid --server value %q", server)
		}
		out.Servers = []lsp.Command{lsp.CommandFromArgv(argv)}
		out.OverrideEnv = ""
	}
	return out, nil
}

// teardown flushes telemetry and closes the logger. Safe to call more than
// once.
func (a *app) teardown() {
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTelemetry(ctx); err != nil && a.logger != nil {
			a.logger.Slog().Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
		a.shutdownTelemetry = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// out returns the printer, creating a plain one if setup never ran.
func (a *app) out() *ux.Printer {
	if a.printer == nil {
		a.printer = ux.NewPrinter(a.stdout, a.stderr)
	}
	return a.printer
}

func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

func (a *app) configPathForDisplay() string {
	if a.opts.configPath != "" {
		return a.opts.configPath
	}
	if p, err := config.DefaultPath(); err == nil {
		return p
	}
	return "(default)"
}

// rootFor picks the workspace root for path: --root, else the nearest
// ancestor holding a project marker, else the file's directory.
func (a *app) rootFor(path string) string {
	if a.opts.root != "" {
		return a.opts.root
	}
	return detectRoot(path)
}

var projectMarkers = []string{".git", "pyproject.toml", "setup.py", "setup.cfg", "go.mod", "package.json", "Cargo.toml"}

func detectRoot(path string) string {
	dir := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		dir = filepath.Dir(path)
	}
	for d := dir; ; {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(d, marker)); err == nil {
				return d
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir
		}
		d = parent
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// traced runs fn inside a span named after the command. Finding problems
// is not a span error.
func (a *app) traced(ctx context.Context, name string, fn func(context.Context, *slog.Logger) error) error {
	ctx, span := telemetry.StartSpan(ctx, "lspbridge."+name)
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, a.slog()).With(slog.String("command", name))

	err := fn(ctx, logger)
	var exitErr *ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Code == exitFindings) {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanOK(span)
	}
	return err
}

// displayPath shortens path relative to the working directory when it lies
// below it.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// absPaths makes every argument absolute.
func absPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("no files given")
	}
	return out, nil
}
