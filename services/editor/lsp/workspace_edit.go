// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/lspbridge/pkg/textfile"
)

// =============================================================================
// COLLECTION
// =============================================================================

// WorkspaceEditBatch groups text edits by absolute file path.
type WorkspaceEditBatch struct {
	edits map[string][]TextEdit
}

// Files returns the paths in the batch in sorted order.
func (b *WorkspaceEditBatch) Files() []string {
	if b == nil {
		return nil
	}
	paths := make([]string, 0, len(b.edits))
	for p := range b.edits {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Edits returns the edits for path in collection order.
func (b *WorkspaceEditBatch) Edits(path string) []TextEdit {
	if b == nil {
		return nil
	}
	return b.edits[path]
}

// Len returns the number of files with at least one edit.
func (b *WorkspaceEditBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.edits)
}

func (b *WorkspaceEditBatch) add(uri string, raws []json.RawMessage) {
	path, ok := URIToPath(uri)
	if !ok {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	var edits []TextEdit
	for _, raw := range raws {
		if edit, ok := parseTextEdit(raw); ok {
			edits = append(edits, edit)
		}
	}
	if len(edits) == 0 {
		return
	}
	b.edits[path] = append(b.edits[path], edits...)
}

// CollectWorkspaceEdit reads a WorkspaceEdit.
//
// Description:
//
//	Edits from "changes" are collected first, then edits from
//	"documentChanges"; both are merged by absolute path. Entries that are
//	not objects, URIs that are not file URIs and edits without a start and
//	end position are skipped. Resource operations (create, rename, delete)
//	are ignored.
//
// Inputs:
//
//	raw - The WorkspaceEdit JSON, typically a rename result
//
// Outputs:
//
//	*WorkspaceEditBatch - The collected edits; never nil
func CollectWorkspaceEdit(raw json.RawMessage) *WorkspaceEditBatch {
	batch := &WorkspaceEditBatch{edits: make(map[string][]TextEdit)}

	var shape struct {
		Changes         json.RawMessage `json:"changes"`
		DocumentChanges json.RawMessage `json:"documentChanges"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &shape) != nil {
		return batch
	}

	var changes map[string]json.RawMessage
	if !isNull(shape.Changes) && json.Unmarshal(shape.Changes, &changes) == nil {
		uris := make([]string, 0, len(changes))
		for uri := range changes {
			uris = append(uris, uri)
		}
		sort.Strings(uris)
		for _, uri := range uris {
			var edits []json.RawMessage
			if json.Unmarshal(changes[uri], &edits) != nil {
				continue
			}
			batch.add(uri, edits)
		}
	}

	var documentChanges []json.RawMessage
	if !isNull(shape.DocumentChanges) && json.Unmarshal(shape.DocumentChanges, &documentChanges) == nil {
		for _, change := range documentChanges {
			var entry struct {
				TextDocument struct {
					URI interface{} `json:"uri"`
				} `json:"textDocument"`
				Edits []json.RawMessage `json:"edits"`
			}
			if json.Unmarshal(change, &entry) != nil {
				continue
			}
			uri, ok := entry.TextDocument.URI.(string)
			if !ok || entry.Edits == nil {
				continue
			}
			batch.add(uri, entry.Edits)
		}
	}
	return batch
}

// parseTextEdit reads one edit. Both range ends must be objects; missing
// end coordinates default to the start.
func parseTextEdit(raw json.RawMessage) (TextEdit, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return TextEdit{}, false
	}
	var rangeFields map[string]json.RawMessage
	if json.Unmarshal(fields["range"], &rangeFields) != nil || rangeFields == nil {
		return TextEdit{}, false
	}
	start, ok := parsePosition(rangeFields["start"])
	if !ok {
		return TextEdit{}, false
	}
	end, ok := parseEndPosition(rangeFields["end"], start)
	if !ok {
		return TextEdit{}, false
	}

	edit := TextEdit{Range: Range{Start: start, End: end}}
	_ = json.Unmarshal(fields["newText"], &edit.NewText)
	return edit, true
}

func parseEndPosition(raw json.RawMessage, start Position) (Position, bool) {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return Position{}, false
	}
	end := start
	if n, ok := numericID(fields["line"]); ok {
		end.Line = int(n)
	}
	if n, ok := numericID(fields["character"]); ok {
		end.Character = int(n)
	}
	return end, true
}

// =============================================================================
// APPLICATION
// =============================================================================

// Buffer is an open editor buffer edits can be applied to.
type Buffer interface {
	Document

	// Transact runs fn inside one undoable edit transaction. replace swaps
	// the byte range [start, end) of the buffer's current text for text.
	Transact(fn func(replace func(start, end int, text string)))
}

// BufferLocator finds the open buffer for a file path.
type BufferLocator interface {
	OpenBuffer(path string) (Buffer, bool)
}

// DocumentSyncer pushes a document's current text to the server. *Client
// implements it.
type DocumentSyncer interface {
	SyncNow(doc Document)
}

// EditApplier applies workspace edit batches to open buffers and files.
type EditApplier struct {
	buffers BufferLocator
	syncer  DocumentSyncer
	logger  *slog.Logger
}

// NewEditApplier creates an applier. buffers and syncer may be nil, in
// which case every file is edited on disk and nothing is resynced.
func NewEditApplier(buffers BufferLocator, syncer DocumentSyncer, logger *slog.Logger) *EditApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditApplier{
		buffers: buffers,
		syncer:  syncer,
		logger:  logger.With(slog.String("component", "edit_applier")),
	}
}

// FileResult is the outcome of applying a workspace edit to one file. Err
// is set when the file could not be read or written; Edits is then zero.
type FileResult struct {
	Path  string
	Edits int
	Err   error
}

// Apply applies every file in batch.
//
// Description:
//
//	Files are processed in sorted path order. Within a file, edits are
//	stable-sorted by start position, descending, and each edit's offsets
//	are computed against the text as it stands after the later edits, so
//	earlier edits never shift. Inverted ranges are swapped. An open buffer
//	is edited in a single transaction and then synced to the server; any
//	other file is read, edited and written back in its original encoding.
//	A file that cannot be read or written is logged and skipped. Files
//	already changed are not rolled back.
//
// Outputs:
//
//	files - Number of files changed
//	edits - Number of edits applied across those files
func (a *EditApplier) Apply(ctx context.Context, batch *WorkspaceEditBatch) (files, edits int) {
	for _, r := range a.ApplyFiles(ctx, batch) {
		if r.Err == nil && r.Edits > 0 {
			files++
			edits += r.Edits
		}
	}
	return files, edits
}

// ApplyFiles applies the batch like Apply and reports the outcome per file,
// in batch order.
func (a *EditApplier) ApplyFiles(ctx context.Context, batch *WorkspaceEditBatch) []FileResult {
	ctx, span := startApplySpan(ctx, batch.Len())
	defer span.End()

	var (
		results      []FileResult
		files, edits int
	)
	for _, path := range batch.Files() {
		sorted := SortEditsDescending(batch.Edits(path))
		if len(sorted) == 0 {
			continue
		}

		r := FileResult{Path: path}
		if buf, ok := a.openBuffer(path); ok {
			r.Edits = a.applyToBuffer(buf, sorted)
		} else {
			r.Edits, r.Err = a.applyToFile(path, sorted)
		}
		if r.Err == nil && r.Edits > 0 {
			files++
			edits += r.Edits
		}
		results = append(results, r)
	}

	setApplySpanResult(span, files, edits)
	recordEditsApplied(ctx, files, edits)
	a.logger.Info("workspace edit applied",
		slog.Int("files", files),
		slog.Int("edits", edits),
		slog.Int("failed", len(results)-files),
	)
	return results
}

func (a *EditApplier) openBuffer(path string) (Buffer, bool) {
	if a.buffers == nil {
		return nil, false
	}
	return a.buffers.OpenBuffer(path)
}

func (a *EditApplier) applyToBuffer(buf Buffer, sorted []TextEdit) int {
	current := buf.Text()
	applied := 0
	buf.Transact(func(replace func(start, end int, text string)) {
		for _, edit := range sorted {
			start, end := editOffsets(current, edit)
			replace(start, end, edit.NewText)
			current = current[:start] + edit.NewText + current[end:]
			applied++
		}
	})
	if applied > 0 && a.syncer != nil {
		a.syncer.SyncNow(buf)
	}
	return applied
}

func (a *EditApplier) applyToFile(path string, sorted []TextEdit) (int, error) {
	f, err := textfile.Read(path)
	if err != nil {
		a.logger.Warn("could not read edit target",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	f.Text = ApplyEdits(f.Text, sorted)
	if err := f.Save(); err != nil {
		a.logger.Warn("could not write edit target",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	a.logger.Debug("updated file from workspace edit", slog.String("path", path))
	return len(sorted), nil
}

// SortEditsDescending returns a copy of edits stable-sorted by start
// position, latest first.
func SortEditsDescending(edits []TextEdit) []TextEdit {
	sorted := append([]TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].Range.Start.Less(sorted[i].Range.Start)
	})
	return sorted
}

// ApplyEdits applies already-sorted edits to text and returns the result.
func ApplyEdits(text string, sorted []TextEdit) string {
	for _, edit := range sorted {
		start, end := editOffsets(text, edit)
		text = text[:start] + edit.NewText + text[end:]
	}
	return text
}

// editOffsets maps an edit's range to byte offsets in text, swapping an
// inverted range.
func editOffsets(text string, edit TextEdit) (int, int) {
	start := OffsetOf(text, edit.Range.Start.Line, edit.Range.Start.Character)
	end := OffsetOf(text, edit.Range.End.Line, edit.Range.End.Character)
	if end < start {
		start, end = end, start
	}
	return start, end
}
