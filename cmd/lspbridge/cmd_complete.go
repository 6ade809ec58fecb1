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

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/spf13/cobra"
)

func newCompleteCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "complete FILE:LINE[:COL]",
		Short: "Print completion candidates at a position",
		Long: `Prints one candidate per line in the server's order: label, the text that
would be inserted and the detail. Exits 1 when there are no candidates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.traced(cmd.Context(), "complete", func(ctx context.Context, logger *slog.Logger) error {
				return runComplete(ctx, a, logger, args[0], limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of candidates to print, 0 for all")
	return cmd
}

func runComplete(ctx context.Context, a *app, logger *slog.Logger, arg string, limit int) error {
	at, err := parseLocationArg(arg)
	if err != nil {
		return err
	}
	s, err := a.openSession(ctx, a.rootFor(at.Path))
	if err != nil {
		return err
	}
	defer s.close()

	doc, err := s.open(at.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", displayPath(at.Path), err)
	}
	pos := toProtocolPosition(doc.Text(), at.Line, at.Column)

	result, err := s.call(ctx, func(h lsp.ResponseHandler) bool {
		return s.client.RequestCompletion(at.Path, pos.Line, pos.Character, h)
	})
	if err != nil {
		return err
	}
	items := lsp.ParseCompletionItems(result)
	logger.Debug("completion received", slog.Int("items", len(items)))
	if len(items) == 0 {
		return findings("%w: no completions at %s:%d:%d", errNoResult, displayPath(at.Path), at.Line, at.Column)
	}

	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, item := range shown {
		a.out().Completion(item.Label, item.Detail, item.ReplacementText())
	}
	if len(shown) < len(items) {
		a.out().Info(fmt.Sprintf("%d more not shown (use --limit)", len(items)-len(shown)))
	}
	return nil
}
