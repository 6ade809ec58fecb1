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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetOf(t *testing.T) {
	text := "ab\ncd\r\nef\rgh"

	tests := []struct {
		name      string
		text      string
		line      int
		character int
		want      int
	}{
		{"start", text, 0, 0, 0},
		{"inside first line", text, 0, 1, 1},
		{"character clamps to line end", text, 0, 99, 2},
		{"second line after lf", text, 1, 0, 3},
		{"crlf terminator excluded", text, 1, 5, 5},
		{"third line after crlf", text, 2, 1, 8},
		{"cr-only terminator", text, 3, 0, 10},
		{"last line end", text, 3, 2, 12},
		{"line past end clamps to text length", text, 999999, 0, len(text)},
		{"negative line", text, -3, 1, 1},
		{"negative character", text, 1, -1, 3},
		{"empty text", "", 0, 5, 0},
		{"empty text far line", "", 10, 0, 0},
		{"trailing newline has no extra line", "x\n", 1, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OffsetOf(tt.text, tt.line, tt.character))
		})
	}
}

func TestOffsetOf_UTF16(t *testing.T) {
	// "é" is one UTF-16 unit and two bytes; "🐍" is two units and four bytes.
	text := "é🐍x\n"

	assert.Equal(t, 0, OffsetOf(text, 0, 0))
	assert.Equal(t, 2, OffsetOf(text, 0, 1))
	assert.Equal(t, 6, OffsetOf(text, 0, 2), "middle of a surrogate pair rounds up")
	assert.Equal(t, 6, OffsetOf(text, 0, 3))
	assert.Equal(t, 7, OffsetOf(text, 0, 4))
	assert.Equal(t, 7, OffsetOf(text, 0, 50))
}

func TestLineCharacterOf(t *testing.T) {
	text := "ab\ncd\r\né🐍"

	tests := []struct {
		name      string
		offset    int
		line      int
		character int
	}{
		{"start", 0, 0, 0},
		{"end of first line", 2, 0, 2},
		{"second line", 3, 1, 0},
		{"inside crlf", 6, 1, 2},
		{"third line", 7, 2, 0},
		{"after e-acute", 9, 2, 1},
		{"end of text", len(text), 2, 3},
		{"negative clamps", -4, 0, 0},
		{"past end clamps", 1000, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, character := LineCharacterOf(text, tt.offset)
			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.character, character)
		})
	}

	t.Run("trailing terminator starts a new line", func(t *testing.T) {
		line, character := LineCharacterOf("x\n", 2)
		assert.Equal(t, 1, line)
		assert.Equal(t, 0, character)
	})
}

func TestPosition_RoundTrip(t *testing.T) {
	text := "def f(x):\r\n    return x  # 🐍\n\nprint(f(1))"

	for offset := 0; offset <= len(text); offset++ {
		pos := PositionOf(text, offset)
		back := OffsetOf(text, pos.Line, pos.Character)

		// Offsets inside a terminator or a multi-byte rune snap backwards.
		assert.LessOrEqual(t, back, offset, "offset %d", offset)
		assert.Equal(t, pos, PositionOf(text, back), "offset %d", offset)
	}
}
