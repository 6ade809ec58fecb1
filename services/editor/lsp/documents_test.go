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
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOpen(t *testing.T, m IncomingMessage) DidOpenTextDocumentParams {
	t.Helper()
	var p DidOpenTextDocumentParams
	require.NoError(t, json.Unmarshal(m.Params, &p))
	return p
}

func decodeChange(t *testing.T, m IncomingMessage) DidChangeTextDocumentParams {
	t.Helper()
	var p DidChangeTextDocumentParams
	require.NoError(t, json.Unmarshal(m.Params, &p))
	return p
}

func TestOpenOrChange_Versions(t *testing.T) {
	c, _, server, _ := startReady(t, fakeServerOptions{})
	path := filepath.Join(c.RootPath(), "app.py")
	uri := PathToURI(path)

	require.True(t, c.OpenOrChange(path, "a = 1\n", ""))
	require.True(t, c.OpenOrChange(path, "a = 2\n", ""))
	require.True(t, c.OpenOrChange(path, "a = 3\n", "python3"))

	opens := server.waitMethod(t, "textDocument/didOpen", 1)
	open := decodeOpen(t, opens[0])
	assert.Equal(t, uri, open.TextDocument.URI)
	assert.Equal(t, 1, open.TextDocument.Version)
	assert.Equal(t, "python", open.TextDocument.LanguageID)
	assert.Equal(t, "a = 1\n", open.TextDocument.Text)

	changes := server.waitMethod(t, "textDocument/didChange", 2)
	for i, want := range []struct {
		version int
		text    string
	}{{2, "a = 2\n"}, {3, "a = 3\n"}} {
		ch := decodeChange(t, changes[i])
		assert.Equal(t, want.version, ch.TextDocument.Version)
		require.Len(t, ch.ContentChanges, 1)
		assert.Equal(t, want.text, ch.ContentChanges[0].Text)
	}

	version, ok := c.DocumentVersion(path)
	require.True(t, ok)
	assert.Equal(t, 3, version)

	t.Run("close then reopen starts at one", func(t *testing.T) {
		c.Close(path)
		closes := server.waitMethod(t, "textDocument/didClose", 1)
		var p DidCloseTextDocumentParams
		require.NoError(t, json.Unmarshal(closes[0].Params, &p))
		assert.Equal(t, uri, p.TextDocument.URI)

		_, ok := c.DocumentVersion(path)
		assert.False(t, ok)

		require.True(t, c.OpenOrChange(path, "fresh", ""))
		opens := server.waitMethod(t, "textDocument/didOpen", 2)
		assert.Equal(t, 1, decodeOpen(t, opens[1]).TextDocument.Version)
	})

	t.Run("closing an unopened document sends nothing", func(t *testing.T) {
		c.Close(filepath.Join(c.RootPath(), "never.py"))
		c.Close(path)
		c.Close(path)
		// Round trip through the server so earlier notifications are recorded.
		require.True(t, c.RequestDefinition(path, 0, 0, nil))
		server.waitMethod(t, "textDocument/definition", 1)
		assert.Len(t, server.withMethod("textDocument/didClose"), 2)
	})
}

func TestOpenOrChange_QueuesUntilReady(t *testing.T) {
	launcher := newFakeLauncher(fakeServerOptions{holdInitialize: true})
	c, rec := newTestClient(t, launcher)
	root := t.TempDir()
	require.True(t, c.EnsureStarted(root))
	rec.waitReady(t, false, "initializing")

	a := filepath.Join(root, "a.py")
	b := filepath.Join(root, "b.py")
	gone := filepath.Join(root, "gone.py")

	assert.False(t, c.OpenOrChange(a, "a1", ""))
	assert.False(t, c.OpenOrChange(b, "b1", ""))
	assert.False(t, c.OpenOrChange(gone, "g1", ""))
	assert.False(t, c.OpenOrChange(a, "a2", ""))
	c.Close(gone)
	assert.Equal(t, 2, c.PendingSyncCount())

	server := launcher.latest(t)
	assert.Empty(t, server.withMethod("textDocument/didOpen"))

	server.release()
	rec.waitReady(t, true, "ready (fake-lsp)")

	opens := server.waitMethod(t, "textDocument/didOpen", 2)
	require.Len(t, opens, 2)
	first, second := decodeOpen(t, opens[0]), decodeOpen(t, opens[1])
	assert.Equal(t, PathToURI(b), first.TextDocument.URI)
	assert.Equal(t, "b1", first.TextDocument.Text)
	assert.Equal(t, PathToURI(a), second.TextDocument.URI)
	assert.Equal(t, "a2", second.TextDocument.Text, "last write wins")
	assert.Equal(t, 1, second.TextDocument.Version)
	assert.Zero(t, c.PendingSyncCount())

	// The handshake completes before any document is sent.
	var order []string
	for _, m := range server.messages() {
		order = append(order, m.Method)
	}
	require.GreaterOrEqual(t, len(order), 4)
	assert.Equal(t, []string{"initialize", "initialized", "textDocument/didOpen", "textDocument/didOpen"}, order[:4])
}

func TestOpenOrChange_QueueClearedOnStop(t *testing.T) {
	launcher := newFakeLauncher(fakeServerOptions{holdInitialize: true})
	c, rec := newTestClient(t, launcher)
	root := t.TempDir()
	require.True(t, c.EnsureStarted(root))
	rec.waitReady(t, false, "initializing")

	c.OpenOrChange(filepath.Join(root, "a.py"), "x", "")
	require.Equal(t, 1, c.PendingSyncCount())

	c.Stop()
	assert.Zero(t, c.PendingSyncCount())
}

func TestPendingSyncQueue(t *testing.T) {
	q := newPendingSyncQueue()
	q.put(pendingSync{uri: "file:///a", text: "1"})
	q.put(pendingSync{uri: "file:///b", text: "1"})
	q.put(pendingSync{uri: "file:///c", text: "1"})
	q.put(pendingSync{uri: "file:///a", text: "2"})
	q.remove("file:///c")
	q.remove("file:///missing")

	assert.Equal(t, 2, q.len())
	got := q.drain()
	require.Len(t, got, 2)
	assert.Equal(t, "file:///b", got[0].uri)
	assert.Equal(t, "file:///a", got[1].uri)
	assert.Equal(t, "2", got[1].text)
	assert.Zero(t, q.len())
}
