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
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// =============================================================================
// COMPLETION
// =============================================================================

// InsertTextFormatSnippet marks insertText as a snippet with placeholders.
const InsertTextFormatSnippet = 2

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label            string
	Kind             int
	Detail           string
	Documentation    string
	SortText         string
	FilterText       string
	InsertText       string
	InsertTextFormat int

	// Edit is the replacement the server wants for this item, if any.
	// InsertReplaceEdit is reduced to its replace range.
	Edit *TextEdit
}

// InsertionText returns the text to insert: insertText, else label.
// Snippet placeholders are reduced to their default text.
func (i CompletionItem) InsertionText() string {
	text := i.InsertText
	if text == "" {
		text = i.Label
	}
	if i.InsertTextFormat == InsertTextFormatSnippet {
		return SanitizeSnippet(text)
	}
	return text
}

// ReplacementText returns the edit's new text when the item carries an
// edit, else InsertionText.
func (i CompletionItem) ReplacementText() string {
	if i.Edit != nil {
		if i.InsertTextFormat == InsertTextFormatSnippet {
			return SanitizeSnippet(i.Edit.NewText)
		}
		return i.Edit.NewText
	}
	return i.InsertionText()
}

var (
	snippetPlaceholder = regexp.MustCompile(`\$\{(\d+):([^}]*)\}`)
	snippetBraceStop   = regexp.MustCompile(`\$\{(\d+)\}`)
	snippetTabStop     = regexp.MustCompile(`\$(\d+)`)
)

// SanitizeSnippet turns snippet syntax into plain text: ${1:name} becomes
// name, bare tab stops are removed and \$ becomes $.
func SanitizeSnippet(text string) string {
	// Escaped dollars are parked so tab stop patterns cannot match them.
	text = strings.ReplaceAll(text, `\$`, "\x00")
	text = snippetPlaceholder.ReplaceAllString(text, "$2")
	text = snippetBraceStop.ReplaceAllString(text, "")
	text = snippetTabStop.ReplaceAllString(text, "")
	return strings.ReplaceAll(text, "\x00", "$")
}

// ParseCompletionItems reads a completion result: either a list of items
// or a CompletionList object with an "items" member. Entries that are not
// objects are skipped. A null or unrecognized result gives no items.
func ParseCompletionItems(result json.RawMessage) []CompletionItem {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 {
		return nil
	}

	var raws []json.RawMessage
	switch trimmed[0] {
	case '[':
		_ = json.Unmarshal(trimmed, &raws)
	case '{':
		var list struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(trimmed, &list)
		raws = list.Items
	}

	items := make([]CompletionItem, 0, len(raws))
	for _, raw := range raws {
		if item, ok := parseCompletionItem(raw); ok {
			items = append(items, item)
		}
	}
	return items
}

func parseCompletionItem(raw json.RawMessage) (CompletionItem, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return CompletionItem{}, false
	}

	var item CompletionItem
	_ = json.Unmarshal(fields["label"], &item.Label)
	_ = json.Unmarshal(fields["detail"], &item.Detail)
	_ = json.Unmarshal(fields["sortText"], &item.SortText)
	_ = json.Unmarshal(fields["filterText"], &item.FilterText)
	_ = json.Unmarshal(fields["insertText"], &item.InsertText)
	if n, ok := numericID(fields["kind"]); ok {
		item.Kind = int(n)
	}
	if n, ok := numericID(fields["insertTextFormat"]); ok {
		item.InsertTextFormat = int(n)
	}
	item.Documentation = parseDocumentation(fields["documentation"])
	item.Edit = parseCompletionEdit(fields["textEdit"])
	return item, true
}

// parseDocumentation accepts a string or a MarkupContent object.
func parseDocumentation(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var markup struct {
		Value string `json:"value"`
	}
	if json.Unmarshal(raw, &markup) == nil {
		return markup.Value
	}
	return ""
}

func parseCompletionEdit(raw json.RawMessage) *TextEdit {
	var fields map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return nil
	}
	rng, ok := parseRange(fields["range"])
	if !ok {
		rng, ok = parseRange(fields["replace"])
	}
	if !ok {
		return nil
	}
	edit := &TextEdit{Range: rng}
	_ = json.Unmarshal(fields["newText"], &edit.NewText)
	return edit
}

// =============================================================================
// DEFINITION
// =============================================================================

// ParseLocation reads a definition result.
//
// Description:
//
//	Accepts a Location, a LocationLink (targetSelectionRange preferred over
//	targetRange), or a list of either; the first entry with a string URI
//	wins. A missing range becomes the zero range.
//
// Outputs:
//
//	Location - The resolved location
//	bool - False if no entry had a URI
func ParseLocation(result json.RawMessage) (Location, bool) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 {
		return Location{}, false
	}

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if json.Unmarshal(trimmed, &list) != nil {
			return Location{}, false
		}
		for _, entry := range list {
			if loc, ok := ParseLocation(entry); ok {
				return loc, true
			}
		}
		return Location{}, false
	case '{':
		return parseLocationObject(trimmed)
	default:
		return Location{}, false
	}
}

func parseLocationObject(raw json.RawMessage) (Location, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return Location{}, false
	}

	var uri string
	if json.Unmarshal(fields["uri"], &uri) == nil && uri != "" {
		rng, _ := parseRange(fields["range"])
		return Location{URI: uri, Range: rng}, true
	}

	if json.Unmarshal(fields["targetUri"], &uri) == nil && uri != "" {
		rng, ok := parseRange(fields["targetSelectionRange"])
		if !ok {
			rng, _ = parseRange(fields["targetRange"])
		}
		return Location{URI: uri, Range: rng}, true
	}
	return Location{}, false
}
