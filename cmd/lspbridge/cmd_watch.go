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
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/AleutianAI/lspbridge/pkg/ux"
	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/AleutianAI/lspbridge/services/editor/status"
	"github.com/AleutianAI/lspbridge/services/editor/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type watchOptions struct {
	exts     []string
	maxFiles int
	listen   string
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Keep a project open on the server and print diagnostics as they change",
		Long: `Opens every matching file below DIR (default: the current directory),
follows edits on disk and prints each diagnostics publication. With --listen
a status server exposes readiness, stored diagnostics, recent server logs
and, when the prometheus metric exporter is active, /metrics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return a.traced(cmd.Context(), "watch", func(ctx context.Context, logger *slog.Logger) error {
				return runWatch(ctx, a, logger, dir, opts)
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.exts, "ext", []string{".py", ".pyi"}, "file extensions to open; empty for all files")
	cmd.Flags().IntVar(&opts.maxFiles, "max-files", 500, "maximum number of files to open, 0 for no limit")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "address for the status server, for example 127.0.0.1:7070")
	return cmd
}

func runWatch(ctx context.Context, a *app, logger *slog.Logger, dir string, opts watchOptions) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if a.opts.root != "" {
		root = a.opts.root
	}

	pw, err := newProjectWatcher(root, opts.exts, opts.maxFiles, logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer pw.close()

	tracker := status.NewTracker(status.DefaultLogLimit)
	printer := lsp.ObserverFuncs{
		OnDiagnosticsPublished: func(uri string, diags []lsp.Diagnostic) {
			printPublication(a.out(), pw, uri, diags)
		},
	}
	s, err := a.openSession(ctx, root, tracker, printer)
	if err != nil {
		return err
	}
	defer s.close()

	pw.syncer = s.client
	if err := pw.addTree(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	a.out().Info(fmt.Sprintf("watching %d files in %s", len(pw.tracked()), displayPath(root)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return pw.run(gctx)
	})
	g.Go(func() error {
		select {
		case <-s.events.lost:
			return errServerLost
		case <-gctx.Done():
			return nil
		}
	})
	if opts.listen != "" {
		srv := &http.Server{
			Addr:              opts.listen,
			Handler:           status.NewRouter(status.NewHandlers(s.client, tracker), telemetry.MetricsHandler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("status server listening", slog.String("addr", opts.listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// printPublication prints one diagnostics publication. An empty
// publication means the file is clean.
func printPublication(out *ux.Printer, pw *projectWatcher, uri string, diags []lsp.Diagnostic) {
	path, ok := lsp.URIToPath(uri)
	if !ok {
		return
	}
	shown := displayPath(path)
	if len(diags) == 0 {
		out.Success(shown + ": no problems")
		return
	}
	text, haveText := pw.text(path)
	for _, d := range sortedDiagnostics(diags) {
		column := d.Range.Start.Character + 1
		if haveText {
			column = displayColumn(text, d.Range.Start)
		}
		out.Diagnostic(ux.DiagnosticLine{
			Path:     shown,
			Line:     d.Range.Start.Line + 1,
			Column:   column,
			Severity: d.Severity.String(),
			Message:  d.Message,
			Source:   d.Source,
			Code:     d.Code,
		})
	}
}
