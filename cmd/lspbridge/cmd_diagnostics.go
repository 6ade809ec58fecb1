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
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/lspbridge/pkg/ux"
	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/spf13/cobra"
)

// diagnosticsSettle is how long publications must stay quiet, once every
// file has been published at least once, before results are printed.
const diagnosticsSettle = 200 * time.Millisecond

func newDiagnosticsCmd(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:     "diagnostics FILE...",
		Aliases: []string{"check"},
		Short:   "Print the diagnostics the server reports for files",
		Long: `Opens every file on the server and prints its diagnostics once each file
has been published and the server has gone quiet, or when --wait runs out.
Exits 1 when any error diagnostic is reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.traced(cmd.Context(), "diagnostics", func(ctx context.Context, logger *slog.Logger) error {
				return runDiagnostics(ctx, a, logger, args, wait)
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "longest time to wait for diagnostics after the server is ready")
	return cmd
}

func runDiagnostics(ctx context.Context, a *app, logger *slog.Logger, args []string, wait time.Duration) error {
	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	s, err := a.openSession(ctx, a.rootFor(paths[0]))
	if err != nil {
		return err
	}
	defer s.close()

	uris := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := s.open(path); err != nil {
			return fmt.Errorf("open %s: %w", displayPath(path), err)
		}
		uris = append(uris, lsp.PathToURI(path))
	}

	missing, err := waitForDiagnostics(ctx, s, uris, wait, diagnosticsSettle)
	if err != nil {
		return err
	}
	for _, uri := range missing {
		path, _ := lsp.URIToPath(uri)
		a.out().Warning("no diagnostics received for " + displayPath(path))
	}

	var errs, warnings, others int
	for _, path := range paths {
		doc := s.docs[path]
		diags := sortedDiagnostics(s.client.Diagnostics(path))
		for _, d := range diags {
			switch d.Severity {
			case lsp.SeverityError:
				errs++
			case lsp.SeverityWarning:
				warnings++
			default:
				others++
			}
			a.out().Diagnostic(ux.DiagnosticLine{
				Path:     displayPath(path),
				Line:     d.Range.Start.Line + 1,
				Column:   displayColumn(doc.Text(), d.Range.Start),
				Severity: d.Severity.String(),
				Message:  d.Message,
				Source:   d.Source,
				Code:     d.Code,
			})
		}
	}
	a.out().DiagnosticSummary(len(paths), errs, warnings, others)
	logger.Info("diagnostics collected",
		slog.Int("files", len(paths)),
		slog.Int("errors", errs),
		slog.Int("warnings", warnings),
	)

	if errs > 0 {
		return &ExitError{Code: exitFindings}
	}
	return nil
}

// waitForDiagnostics blocks until every uri has been published at least
// once and no publication arrived for settle, or until limit runs out. It
// returns the uris that were never published.
func waitForDiagnostics(ctx context.Context, s *session, uris []string, limit, settle time.Duration) ([]string, error) {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()

	var settleTimer *time.Timer
	var settled <-chan time.Time
	defer func() {
		if settleTimer != nil {
			settleTimer.Stop()
		}
	}()

	for {
		if settleTimer == nil && len(unpublished(s.events, uris)) == 0 {
			settleTimer = time.NewTimer(settle)
			settled = settleTimer.C
		}
		select {
		case <-s.events.changed:
			if settleTimer != nil {
				settleTimer.Reset(settle)
			}
		case <-settled:
			return nil, nil
		case <-deadline.C:
			return unpublished(s.events, uris), nil
		case <-s.events.lost:
			return nil, errServerLost
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func unpublished(events *sessionEvents, uris []string) []string {
	var out []string
	for _, uri := range uris {
		if events.publishedCount(uri) == 0 {
			out = append(out, uri)
		}
	}
	return out
}

// sortedDiagnostics orders diagnostics by start position, keeping server
// order for ties.
func sortedDiagnostics(diags []lsp.Diagnostic) []lsp.Diagnostic {
	out := append([]lsp.Diagnostic(nil), diags...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Range.Start, out[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Character < b.Character
	})
	return out
}
