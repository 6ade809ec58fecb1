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
	"strings"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/spf13/cobra"
)

func newRenameCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rename FILE:LINE[:COL] NEW_NAME",
		Short: "Rename the symbol at a position across the workspace",
		Long: `Asks the server for a rename edit and applies it to the files on disk,
keeping each file's encoding. With --dry-run the files that would change
are listed and nothing is written. Exits 1 when the server proposes no
edits.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.traced(cmd.Context(), "rename", func(ctx context.Context, logger *slog.Logger) error {
				return runRename(ctx, a, logger, args[0], args[1], dryRun)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the files that would change without writing them")
	return cmd
}

func runRename(ctx context.Context, a *app, logger *slog.Logger, arg, newName string, dryRun bool) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errors.New("new name must not be empty")
	}
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
		return s.client.RequestRename(at.Path, pos.Line, pos.Character, newName, h)
	})
	if err != nil {
		return err
	}
	batch := lsp.CollectWorkspaceEdit(result)
	if batch.Len() == 0 {
		return findings("%w: nothing to rename at %s:%d:%d", errNoResult, displayPath(at.Path), at.Line, at.Column)
	}

	if dryRun {
		total := 0
		for _, path := range batch.Files() {
			n := len(batch.Edits(path))
			total += n
			a.out().FileEdits(displayPath(path), n, false)
		}
		logger.Info("rename planned", slog.Int("files", batch.Len()), slog.Int("edits", total))
		return nil
	}

	return applyRename(ctx, a, logger, batch, newName)
}

// applyRename writes batch to disk and reports each file. Files that could
// not be written are listed as failed and make the command fail.
func applyRename(ctx context.Context, a *app, logger *slog.Logger, batch *lsp.WorkspaceEditBatch, newName string) error {
	results := lsp.NewEditApplier(nil, nil, logger).ApplyFiles(ctx, batch)
	files, edits := 0, 0
	for _, r := range results {
		planned := len(batch.Edits(r.Path))
		if r.Err != nil {
			a.out().FileFailed(displayPath(r.Path), planned, r.Err)
			continue
		}
		files++
		edits += r.Edits
		a.out().FileEdits(displayPath(r.Path), r.Edits, true)
	}
	if files < len(results) {
		return fmt.Errorf("renamed in %d of %d files", files, len(results))
	}
	a.out().Success(fmt.Sprintf("renamed to %s: %d edits in %d files", newName, edits, files))
	return nil
}
