// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import (
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

// DefaultLogLimit is how many server log lines a Tracker keeps.
const DefaultLogLimit = 200

// Tracker records client events for the status endpoints. It implements
// lsp.Observer.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	ready       bool
	message     string
	changedAt   time.Time
	diagnostics map[string][]lsp.Diagnostic
	logs        []string
	logLimit    int
	now         func() time.Time
}

// NewTracker creates a Tracker keeping at most logLimit log lines. A
// non-positive limit uses DefaultLogLimit.
func NewTracker(logLimit int) *Tracker {
	if logLimit <= 0 {
		logLimit = DefaultLogLimit
	}
	return &Tracker{
		diagnostics: make(map[string][]lsp.Diagnostic),
		logLimit:    logLimit,
		now:         time.Now,
	}
}

// ReadyChanged implements lsp.Observer. Losing readiness clears diagnostics,
// matching the client.
func (t *Tracker) ReadyChanged(ready bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = ready
	t.message = message
	t.changedAt = t.now()
	if !ready {
		t.diagnostics = make(map[string][]lsp.Diagnostic)
	}
}

// DiagnosticsPublished implements lsp.Observer. An empty list removes the
// entry.
func (t *Tracker) DiagnosticsPublished(uri string, diagnostics []lsp.Diagnostic) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(diagnostics) == 0 {
		delete(t.diagnostics, uri)
		return
	}
	t.diagnostics[uri] = append([]lsp.Diagnostic(nil), diagnostics...)
}

// LogMessage implements lsp.Observer.
func (t *Tracker) LogMessage(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, text)
	if over := len(t.logs) - t.logLimit; over > 0 {
		t.logs = append(t.logs[:0:0], t.logs[over:]...)
	}
}

// State returns the last readiness event.
func (t *Tracker) State() (ready bool, message string, changedAt time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready, t.message, t.changedAt
}

// Diagnostics returns every stored set as file entries sorted by URI.
func (t *Tracker) Diagnostics() []FileDiagnostics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]FileDiagnostics, 0, len(t.diagnostics))
	for uri, diags := range t.diagnostics {
		out = append(out, newFileDiagnostics(uri, diags))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Counts returns totals by severity over every stored set.
func (t *Tracker) Counts() SeverityCounts {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var c SeverityCounts
	for _, diags := range t.diagnostics {
		c.add(diags)
	}
	c.Files = len(t.diagnostics)
	return c
}

// Logs returns up to n most recent log lines, oldest first. n <= 0 returns
// all of them.
func (t *Tracker) Logs(n int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := 0
	if n > 0 && len(t.logs) > n {
		start = len(t.logs) - n
	}
	return append([]string(nil), t.logs[start:]...)
}

var _ lsp.Observer = (*Tracker)(nil)
