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
	"path/filepath"
	"testing"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

func TestParseLocationArg(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		path    string
		line    int
		column  int
		wantErr bool
	}{
		{name: "line and column", arg: "app/views.py:42:17", path: "app/views.py", line: 42, column: 17},
		{name: "line only", arg: "models.py:3", path: "models.py", line: 3, column: 1},
		{name: "colon in path", arg: "odd:name.py:2:5", path: "odd:name.py", line: 2, column: 5},
		{name: "no position", arg: "models.py", wantErr: true},
		{name: "zero line", arg: "models.py:0:1", wantErr: true},
		{name: "zero column", arg: "models.py:1:0", wantErr: true},
		{name: "missing file", arg: ":1:1", wantErr: true},
		{name: "not a number", arg: "models.py:x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLocationArg(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLocationArg(%q) = %+v, want error", tt.arg, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLocationArg(%q) error: %v", tt.arg, err)
			}
			want, _ := filepath.Abs(tt.path)
			if got.Path != want || got.Line != tt.line || got.Column != tt.column {
				t.Errorf("parseLocationArg(%q) = %+v, want %s:%d:%d", tt.arg, got, want, tt.line, tt.column)
			}
		})
	}
}

func TestLineText(t *testing.T) {
	text := "first\r\nsecond\rthird\nlast"
	for i, want := range []string{"first", "second", "third", "last", ""} {
		if got := lineText(text, i); got != want {
			t.Errorf("lineText(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestToProtocolPosition(t *testing.T) {
	text := "x = 1\ns = \"😀é\" + name\n"

	tests := []struct {
		name   string
		line   int
		column int
		want   lsp.Position
	}{
		{name: "start", line: 1, column: 1, want: lsp.Position{Line: 0, Character: 0}},
		{name: "ascii", line: 1, column: 5, want: lsp.Position{Line: 0, Character: 4}},
		{name: "after surrogate pair", line: 2, column: 7, want: lsp.Position{Line: 1, Character: 7}},
		{name: "after accent", line: 2, column: 8, want: lsp.Position{Line: 1, Character: 8}},
		{name: "past end of line clamps", line: 1, column: 99, want: lsp.Position{Line: 0, Character: 5}},
		{name: "past last line", line: 9, column: 3, want: lsp.Position{Line: 8, Character: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toProtocolPosition(text, tt.line, tt.column); got != tt.want {
				t.Errorf("toProtocolPosition(%d, %d) = %+v, want %+v", tt.line, tt.column, got, tt.want)
			}
		})
	}
}

func TestDisplayColumn_RoundTrip(t *testing.T) {
	text := "a😀b\ncé d\n"
	for line := 1; line <= 2; line++ {
		for column := 1; column <= 4; column++ {
			pos := toProtocolPosition(text, line, column)
			if got := displayColumn(text, pos); got != column {
				t.Errorf("line %d column %d: round trip gave %d (pos %+v)", line, column, got, pos)
			}
		}
	}
}
