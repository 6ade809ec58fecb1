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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
	"github.com/fsnotify/fsnotify"
)

// docSyncer is the part of *lsp.Client the watcher drives.
type docSyncer interface {
	ScheduleSync(doc lsp.Document)
	CancelSync(doc lsp.Document)
	Close(path string)
}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	"build":        true,
	"dist":         true,
}

// projectWatcher keeps the server's copy of a directory tree in step with
// the disk.
//
// Matching files are opened when found and rescheduled for sync on every
// write. Removed or renamed files are closed on the server. At most
// maxFiles documents are tracked; later files are ignored.
//
// Thread Safety:
//
//	handle and text may be called concurrently.
type projectWatcher struct {
	root     string
	exts     map[string]bool
	maxFiles int
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	// syncer is set once the session is ready, before the tree is added.
	syncer docSyncer

	mu      sync.Mutex
	docs    map[string]*diskDocument
	limited bool
}

func newProjectWatcher(root string, exts []string, maxFiles int, logger *slog.Logger) (*projectWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return &projectWatcher{
		root:     root,
		exts:     set,
		maxFiles: maxFiles,
		logger:   logger.With(slog.String("component", "watcher")),
		watcher:  w,
		docs:     make(map[string]*diskDocument),
	}, nil
}

// matches reports whether path has a watched extension. An empty
// extension set matches every file.
func (p *projectWatcher) matches(path string) bool {
	if len(p.exts) == 0 {
		return true
	}
	return p.exts[strings.ToLower(filepath.Ext(path))]
}

func skipDir(name string) bool {
	return (strings.HasPrefix(name, ".") && name != ".") || skippedDirs[name]
}

// addTree watches dir and every directory below it, and opens matching
// files found on the way.
func (p *projectWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.logger.Debug("walk error", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := p.watcher.Add(path); err != nil {
				p.logger.Warn("cannot watch directory", slog.String("path", path), slog.String("error", err.Error()))
			}
			return nil
		}
		if d.Type().IsRegular() && p.matches(path) {
			p.track(path)
		}
		return nil
	})
}

// track opens path on the server if it is not tracked yet.
func (p *projectWatcher) track(path string) {
	p.mu.Lock()
	if _, ok := p.docs[path]; ok {
		p.mu.Unlock()
		return
	}
	if p.maxFiles > 0 && len(p.docs) >= p.maxFiles {
		if !p.limited {
			p.limited = true
			p.logger.Warn("file limit reached, ignoring further files", slog.Int("max_files", p.maxFiles))
		}
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	doc, err := loadDocument(path)
	if err != nil {
		p.logger.Debug("cannot read file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	if _, ok := p.docs[path]; ok {
		p.mu.Unlock()
		return
	}
	p.docs[path] = doc
	p.mu.Unlock()
	p.syncer.ScheduleSync(doc)
}

// untrack closes path on the server.
func (p *projectWatcher) untrack(path string) {
	p.mu.Lock()
	doc, ok := p.docs[path]
	delete(p.docs, path)
	p.mu.Unlock()
	if !ok {
		return
	}
	p.syncer.CancelSync(doc)
	p.syncer.Close(path)
	p.logger.Debug("document closed", slog.String("path", path))
}

// trackedUnder returns path itself, if tracked, and every tracked file below
// it.
func (p *projectWatcher) trackedUnder(path string) []string {
	prefix := path + string(filepath.Separator)
	p.mu.Lock()
	defer p.mu.Unlock()
	var paths []string
	for tracked := range p.docs {
		if tracked == path || strings.HasPrefix(tracked, prefix) {
			paths = append(paths, tracked)
		}
	}
	sort.Strings(paths)
	return paths
}

// handle applies one file system event.
func (p *projectWatcher) handle(ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		for _, tracked := range p.trackedUnder(path) {
			p.untrack(tracked)
		}
		return
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(path)) {
				_ = p.addTree(path)
			}
			return
		}
	case !ev.Has(fsnotify.Write):
		return
	}
	if !p.matches(path) {
		return
	}

	p.mu.Lock()
	doc, ok := p.docs[path]
	p.mu.Unlock()
	if !ok {
		p.track(path)
		return
	}
	if err := doc.reload(); err != nil {
		p.logger.Debug("reload failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	p.syncer.ScheduleSync(doc)
}

// run processes events until ctx is done or the watcher is closed.
func (p *projectWatcher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return nil
			}
			p.handle(ev)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// text returns the tracked text of path.
func (p *projectWatcher) text(path string) (string, bool) {
	p.mu.Lock()
	doc, ok := p.docs[path]
	p.mu.Unlock()
	if !ok {
		return "", false
	}
	return doc.Text(), true
}

// tracked returns the tracked paths in sorted order.
func (p *projectWatcher) tracked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.docs))
	for path := range p.docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (p *projectWatcher) close() error {
	return p.watcher.Close()
}
