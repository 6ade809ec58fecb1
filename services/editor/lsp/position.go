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

import "unicode/utf8"

// lineSpan is one line of a text: [start, contentEnd) is the line without
// its terminator and [contentEnd, end) is the terminator itself.
type lineSpan struct {
	start      int
	contentEnd int
	end        int
}

// splitLines splits text into lines, keeping "\n", "\r\n" and "\r" as
// terminators. An empty text has no lines and a trailing terminator does not
// start a new line.
func splitLines(text string) []lineSpan {
	var spans []lineSpan
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			spans = append(spans, lineSpan{start: start, contentEnd: i, end: i + 1})
			start = i + 1
		case '\r':
			end := i + 1
			if end < len(text) && text[end] == '\n' {
				end++
			}
			spans = append(spans, lineSpan{start: start, contentEnd: i, end: end})
			start = end
			i = end - 1
		}
	}
	if start < len(text) {
		spans = append(spans, lineSpan{start: start, contentEnd: len(text), end: len(text)})
	}
	return spans
}

// OffsetOf converts an LSP position to a byte offset in text.
//
// Description:
//
//	Lines past the end clamp to len(text). Within a line, character is
//	counted in UTF-16 code units and clamped to the line length without
//	its terminator, so out-of-range server positions never land inside a
//	line break or past the buffer. Negative inputs are treated as 0.
//
// Inputs:
//
//	text - The document content
//	line - 0-based line number
//	character - 0-based UTF-16 offset within the line
//
// Outputs:
//
//	int - Byte offset into text, always in [0, len(text)]
func OffsetOf(text string, line, character int) int {
	if line < 0 {
		line = 0
	}
	if character < 0 {
		character = 0
	}
	lines := splitLines(text)
	if len(lines) == 0 {
		return 0
	}
	if line >= len(lines) {
		return len(text)
	}
	span := lines[line]
	return span.start + utf16ToByteOffset(text[span.start:span.contentEnd], character)
}

// LineCharacterOf converts a byte offset in text to an LSP position.
//
// Description:
//
//	Inverse of OffsetOf. Offsets are clamped to [0, len(text)]; an offset
//	inside a multi-byte character maps to the start of that character and
//	an offset inside a line terminator maps to the end of that line. An
//	offset at the end of a text that ends with a terminator maps to the
//	start of the following (empty) line.
func LineCharacterOf(text string, offset int) (line, character int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}
	lines := splitLines(text)
	if len(lines) == 0 {
		return 0, 0
	}
	for i, span := range lines {
		if offset < span.end {
			stop := offset
			if stop > span.contentEnd {
				stop = span.contentEnd
			}
			return i, utf16Len(text[span.start:stop])
		}
	}
	last := lines[len(lines)-1]
	if last.contentEnd < last.end {
		return len(lines), 0
	}
	return len(lines) - 1, utf16Len(text[last.start:offset])
}

// PositionOf is LineCharacterOf returning a Position.
func PositionOf(text string, offset int) Position {
	line, character := LineCharacterOf(text, offset)
	return Position{Line: line, Character: character}
}

// utf16ToByteOffset returns the byte offset of the given UTF-16 unit count
// within s. A count that splits a surrogate pair rounds up to the end of the
// rune; counts past the end clamp to len(s).
func utf16ToByteOffset(s string, units int) int {
	n := 0
	for i := 0; i < len(s); {
		if n >= units {
			return i
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		n += runeUTF16Len(r)
		i += size
		if n > units {
			return i
		}
	}
	return len(s)
}

func utf16Len(s string) int {
	n := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		n += runeUTF16Len(r)
		i += size
	}
	return n
}

func runeUTF16Len(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}
