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
	"sync"
	"time"
)

// Document is an editor buffer that can be synced to the server.
//
// Text may be called from a timer goroutine, so implementations must make
// it safe for concurrent use.
type Document interface {
	// Path is the file path backing the buffer. Empty means unsaved; such
	// documents are never synced.
	Path() string

	// LanguageID identifies the buffer's language; empty uses the client
	// default.
	LanguageID() string

	// Text returns the complete current content.
	Text() string
}

// Debouncer coalesces bursts of sync requests per document.
//
// Description:
//
//	Schedule (re)arms a per-document timer; when it fires the sync function
//	runs with the document's text at that moment. Flush cancels the timer
//	and syncs on the caller's goroutine. Documents are keyed by normalized
//	path.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Debouncer struct {
	delay time.Duration
	sync  func(Document)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that calls sync after delay of quiet.
func NewDebouncer(delay time.Duration, sync func(Document)) *Debouncer {
	return &Debouncer{
		delay:  delay,
		sync:   sync,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms or re-arms the timer for doc.
func (d *Debouncer) Schedule(doc Document) {
	path := doc.Path()
	if path == "" {
		return
	}
	key := NormalizePath(path)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current, ok := d.timers[key]
		if !ok || current != timer || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		d.sync(doc)
	})
	d.timers[key] = timer
}

// Flush cancels any pending timer for doc and syncs it now.
func (d *Debouncer) Flush(doc Document) {
	path := doc.Path()
	if path == "" {
		return
	}
	d.Cancel(path)

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped {
		d.sync(doc)
	}
}

// Cancel drops the pending timer for path, if any.
func (d *Debouncer) Cancel(path string) {
	if path == "" {
		return
	}
	key := NormalizePath(path)

	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// Pending reports whether a sync is scheduled for path.
func (d *Debouncer) Pending(path string) bool {
	key := NormalizePath(path)
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Stop cancels all timers; later calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}

// =============================================================================
// CLIENT INTEGRATION
// =============================================================================

// ScheduleSync syncs doc after the debounce interval, restarting the
// interval if a sync is already scheduled.
func (c *Client) ScheduleSync(doc Document) {
	c.debouncer.Schedule(doc)
}

// SyncNow cancels any scheduled sync for doc and syncs it before returning.
// Use it before requests that depend on the latest text.
func (c *Client) SyncNow(doc Document) {
	c.debouncer.Flush(doc)
}

// CancelSync drops any scheduled sync for doc.
func (c *Client) CancelSync(doc Document) {
	c.debouncer.Cancel(doc.Path())
}

func (c *Client) syncDocument(doc Document) {
	c.OpenOrChange(doc.Path(), doc.Text(), doc.LanguageID())
}
