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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

// cursor is a position given on the command line: 1-based line and
// 1-based column counted in characters.
type cursor struct {
	Path   string
	Line   int
	Column int
}

// parseLocationArg reads "file:line:col" or "file:line". Fields are split
// from the right so drive letters and colons in the path survive.
func parseLocationArg(arg string) (cursor, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 {
		return cursor{}, fmt.Errorf("invalid position %q: want file:line[:col]", arg)
	}

	nums := make([]int, 0, 2)
	i := len(parts) - 1
	for ; i > 0 && len(nums) < 2; i-- {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return cursor{}, fmt.Errorf("invalid position %q: want file:line[:col]", arg)
	}

	c := cursor{Path: strings.Join(parts[:i+1], ":"), Column: 1}
	if len(nums) == 2 {
		c.Line, c.Column = nums[1], nums[0]
	} else {
		c.Line = nums[0]
	}
	if c.Path == "" {
		return cursor{}, fmt.Errorf("invalid position %q: missing file", arg)
	}
	if c.Line < 1 || c.Column < 1 {
		return cursor{}, fmt.Errorf("invalid position %q: line and column start at 1", arg)
	}

	abs, err := filepath.Abs(c.Path)
	if err != nil {
		return cursor{}, err
	}
	c.Path = abs
	return c, nil
}

// lineText returns the 0-based line of text without its terminator.
func lineText(text string, line int) string {
	rest := text[lsp.OffsetOf(text, line, 0):]
	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// toProtocolPosition converts a 1-based line and character column into a
// protocol position counted in UTF-16 units. Columns past the end of the
// line clamp to its end.
func toProtocolPosition(text string, line, column int) lsp.Position {
	line--
	units := 0
	remaining := column - 1
	for _, r := range lineText(text, line) {
		if remaining <= 0 {
			break
		}
		if n := utf16.RuneLen(r); n > 0 {
			units += n
		} else {
			units++
		}
		remaining--
	}
	return lsp.Position{Line: line, Character: units}
}

// displayColumn converts a protocol position into a 1-based character
// column.
func displayColumn(text string, pos lsp.Position) int {
	start := lsp.OffsetOf(text, pos.Line, 0)
	end := lsp.OffsetOf(text, pos.Line, pos.Character)
	return utf8.RuneCountInString(text[start:end]) + 1
}
