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

	"github.com/AleutianAI/lspbridge/pkg/textfile"
	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/spf13/cobra"
)

func newDefinitionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "definition FILE:LINE[:COL]",
		Aliases: []string{"def"},
		Short:   "Print where the symbol at a position is defined",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.traced(cmd.Context(), "definition", func(ctx context.Context, logger *slog.Logger) error {
				return runDefinition(ctx, a, logger, args[0])
			})
		},
	}
}

func runDefinition(ctx context.Context, a *app, logger *slog.Logger, arg string) error {
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
		return s.client.RequestDefinition(at.Path, pos.Line, pos.Character, h)
	})
	if err != nil {
		return err
	}
	loc, ok := lsp.ParseLocation(result)
	if !ok {
		return findings("%w at %s:%d:%d", errNoResult, displayPath(at.Path), at.Line, at.Column)
	}
	target, ok := lsp.URIToPath(loc.URI)
	if !ok {
		return findings("definition is outside the file system: %s", loc.URI)
	}

	line, column, source := loc.Range.Start.Line+1, loc.Range.Start.Character+1, ""
	if text, ok := targetText(s, target); ok {
		column = displayColumn(text, loc.Range.Start)
		source = lineText(text, loc.Range.Start.Line)
	}
	logger.Debug("definition resolved", slog.String("target", target), slog.Int("line", line))
	a.out().Location(displayPath(target), line, column, source)
	return nil
}

// targetText returns the text of path, preferring the synced copy.
func targetText(s *session, path string) (string, bool) {
	if doc, ok := s.docs[lsp.NormalizePath(path)]; ok {
		return doc.Text(), true
	}
	if doc, ok := s.docs[path]; ok {
		return doc.Text(), true
	}
	f, err := textfile.Read(path)
	if err != nil {
		return "", false
	}
	return f.Text, true
}
