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
	"strings"
	"sync"

	"github.com/AleutianAI/lspbridge/pkg/textfile"
)

// diskDocument is an lsp.Document backed by a file. The text is a snapshot
// taken at load or reload time.
type diskDocument struct {
	path string
	lang string

	mu   sync.RWMutex
	text string
}

// loadDocument reads path, decoding it the way the edit applier will write
// it back.
func loadDocument(path string) (*diskDocument, error) {
	f, err := textfile.Read(path)
	if err != nil {
		return nil, err
	}
	return &diskDocument{path: path, lang: languageForPath(path), text: f.Text}, nil
}

func (d *diskDocument) Path() string       { return d.path }
func (d *diskDocument) LanguageID() string { return d.lang }

func (d *diskDocument) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// reload re-reads the file. On error the previous text is kept.
func (d *diskDocument) reload() error {
	f, err := textfile.Read(d.path)
	if err != nil {
		return err
	}
	d.setText(f.Text)
	return nil
}

func (d *diskDocument) setText(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}

var languageIDs = map[string]string{
	".py":   "python",
	".pyi":  "python",
	".go":   "go",
	".rs":   "rust",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".sh":   "shellscript",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
}

// languageForPath maps a file extension to a language identifier. Unknown
// extensions return "", which the client replaces with its default.
func languageForPath(path string) string {
	return languageIDs[strings.ToLower(filepath.Ext(path))]
}
