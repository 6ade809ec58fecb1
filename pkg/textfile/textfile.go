// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textfile reads and writes text files while preserving their
// encoding.
//
// Read detects a UTF-8 byte order mark, plain UTF-8, or falls back to
// Windows-1252. Write re-encodes text with the encoding it was read with
// and never touches line endings.
package textfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnencodable indicates text contains characters the target encoding
// cannot represent.
var ErrUnencodable = errors.New("text not representable in file encoding")

// Encoding identifies how a file's bytes map to text.
type Encoding int

const (
	// UTF8 is UTF-8 without a byte order mark.
	UTF8 Encoding = iota

	// UTF8BOM is UTF-8 with a leading byte order mark.
	UTF8BOM

	// Windows1252 is the Western European single-byte code page.
	Windows1252
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF8BOM:
		return "utf-8-bom"
	case Windows1252:
		return "windows-1252"
	default:
		return "unknown"
	}
}

func (e Encoding) codec() encoding.Encoding {
	switch e {
	case UTF8BOM:
		return unicode.UTF8BOM
	case Windows1252:
		return charmap.Windows1252
	default:
		return unicode.UTF8
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is the decoded content of a text file.
type File struct {
	Path     string
	Text     string
	Encoding Encoding
	Mode     fs.FileMode
}

// Decode detects the encoding of data and returns its text.
func Decode(data []byte) (string, Encoding, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		text, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
		if err != nil {
			return "", UTF8BOM, fmt.Errorf("decode utf-8: %w", err)
		}
		return string(text), UTF8BOM, nil
	case utf8.Valid(data):
		return string(data), UTF8, nil
	default:
		text, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", Windows1252, fmt.Errorf("decode windows-1252: %w", err)
		}
		return string(text), Windows1252, nil
	}
}

// Encode converts text to bytes in enc.
func Encode(text string, enc Encoding) ([]byte, error) {
	if enc == UTF8 {
		return []byte(text), nil
	}
	data, err := enc.codec().NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrUnencodable, enc, err)
	}
	return data, nil
}

// Read loads and decodes path.
func Read(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, enc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Path: path, Text: text, Encoding: enc, Mode: info.Mode().Perm()}, nil
}

// Write encodes text with enc and replaces path atomically through a
// temporary file in the same directory.
func Write(path, text string, enc Encoding, mode fs.FileMode) error {
	data, err := Encode(text, enc)
	if err != nil {
		return err
	}
	if mode == 0 {
		mode = 0o644
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Save writes f back to its path in its original encoding.
func (f *File) Save() error {
	return Write(f.Path, f.Text, f.Encoding, f.Mode)
}
