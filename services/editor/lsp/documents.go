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

// =============================================================================
// PENDING SYNC QUEUE
// =============================================================================

// pendingSync is a document synced before the connection was ready.
type pendingSync struct {
	uri        string
	text       string
	languageID string
}

// pendingSyncQueue holds at most one entry per URI, ordered by last write.
// Re-queuing a URI replaces its entry and moves it to the end.
type pendingSyncQueue struct {
	order   []string
	entries map[string]pendingSync
}

func newPendingSyncQueue() *pendingSyncQueue {
	return &pendingSyncQueue{entries: make(map[string]pendingSync)}
}

func (q *pendingSyncQueue) put(p pendingSync) {
	if _, ok := q.entries[p.uri]; ok {
		q.remove(p.uri)
	}
	q.order = append(q.order, p.uri)
	q.entries[p.uri] = p
}

func (q *pendingSyncQueue) remove(uri string) {
	if _, ok := q.entries[uri]; !ok {
		return
	}
	delete(q.entries, uri)
	for i, u := range q.order {
		if u == uri {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// drain returns all entries in order and empties the queue.
func (q *pendingSyncQueue) drain() []pendingSync {
	out := make([]pendingSync, 0, len(q.order))
	for _, uri := range q.order {
		out = append(out, q.entries[uri])
	}
	q.order = nil
	q.entries = make(map[string]pendingSync)
	return out
}

func (q *pendingSyncQueue) len() int {
	return len(q.order)
}

// =============================================================================
// DOCUMENT SYNCHRONIZATION
// =============================================================================

// OpenOrChange sends the full text of a document to the server.
//
// Description:
//
//	When the connection is not ready the text is queued (one entry per
//	document, last write wins) and false is returned; queued documents are
//	sent right after the handshake. Otherwise the first sync of a document
//	sends didOpen with version 1 and later syncs send didChange with the
//	full text and the next version.
//
// Inputs:
//
//	path - The document's file path
//	text - The complete current text
//	languageID - Language identifier; empty uses the configured default
//
// Outputs:
//
//	bool - True if a notification was sent
func (c *Client) OpenOrChange(path, text, languageID string) bool {
	sent := false
	_ = c.do(func() {
		sent = c.openOrChangeLocked(path, text, languageID)
	})
	return sent
}

// Close tells the server a document is no longer open.
//
// Description:
//
//	Any queued sync for the document is dropped. If the document was opened
//	on the server its version is forgotten and didClose is sent when the
//	connection is ready.
func (c *Client) Close(path string) {
	c.debouncer.Cancel(path)
	_ = c.do(func() {
		c.closeLocked(path)
	})
}

// DocumentVersion returns the last version sent for path.
func (c *Client) DocumentVersion(path string) (int, bool) {
	var version int
	ok := false
	uri := PathToURI(path)
	_ = c.do(func() {
		version, ok = c.versions[uri]
	})
	return version, ok
}

// PendingSyncCount returns the number of documents waiting for readiness.
func (c *Client) PendingSyncCount() int {
	n := 0
	_ = c.do(func() {
		n = c.pendingSyncs.len()
	})
	return n
}

func (c *Client) openOrChangeLocked(path, text, languageID string) bool {
	if languageID == "" {
		languageID = c.cfg.LanguageID
	}
	uri := PathToURI(path)

	conn := c.conn
	if conn == nil || !conn.ready {
		c.pendingSyncs.put(pendingSync{uri: uri, text: text, languageID: languageID})
		return false
	}

	version, open := c.versions[uri]
	if !open {
		c.versions[uri] = 1
		c.sendNotificationLocked(conn, "textDocument/didOpen", DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
		})
		return true
	}

	version++
	c.versions[uri] = version
	c.sendNotificationLocked(conn, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: uri, Version: version},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
	})
	return true
}

func (c *Client) closeLocked(path string) {
	uri := PathToURI(path)
	c.pendingSyncs.remove(uri)
	if _, open := c.versions[uri]; !open {
		return
	}
	delete(c.versions, uri)

	if conn := c.conn; conn != nil && conn.ready {
		c.sendNotificationLocked(conn, "textDocument/didClose", DidCloseTextDocumentParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
		})
	}
}

// flushPendingLocked sends queued documents in queue order.
func (c *Client) flushPendingLocked() {
	conn := c.conn
	if conn == nil || !conn.ready {
		return
	}
	for _, p := range c.pendingSyncs.drain() {
		path, ok := URIToPath(p.uri)
		if !ok {
			continue
		}
		c.openOrChangeLocked(path, p.text, p.languageID)
	}
}
