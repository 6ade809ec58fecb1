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
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSessionEvents_Readiness(t *testing.T) {
	t.Run("failure before ready", func(t *testing.T) {
		e := newSessionEvents(slog.New(slog.DiscardHandler))
		e.ReadyChanged(false, "initializing")
		select {
		case msg := <-e.failed:
			t.Fatalf("initializing reported as failure %q", msg)
		default:
		}

		e.ReadyChanged(false, "server exited")
		e.ReadyChanged(false, "stopped")
		if msg := <-e.failed; msg != "server exited" {
			t.Errorf("failed = %q, want the first failure", msg)
		}
		if closed(e.ready) || closed(e.lost) {
			t.Error("ready or lost closed without a handshake")
		}
	})

	t.Run("lost after ready", func(t *testing.T) {
		e := newSessionEvents(slog.New(slog.DiscardHandler))
		e.ReadyChanged(false, "initializing")
		e.ReadyChanged(true, "ready (pylsp)")
		e.ReadyChanged(true, "ready (pylsp)")
		if !closed(e.ready) {
			t.Fatal("ready not closed")
		}
		if closed(e.lost) {
			t.Fatal("lost closed while ready")
		}

		e.ReadyChanged(false, "server exited")
		e.ReadyChanged(false, "stopped")
		if !closed(e.lost) {
			t.Error("lost not closed after readiness was lost")
		}
		if len(e.failed) != 0 {
			t.Error("losing readiness reported as a start failure")
		}
	})
}

func TestSessionEvents_Published(t *testing.T) {
	e := newSessionEvents(slog.New(slog.DiscardHandler))
	uris := []string{"file:///a.py", "file:///b.py"}

	if got := unpublished(e, uris); !reflect.DeepEqual(got, uris) {
		t.Errorf("unpublished = %v, want all", got)
	}

	e.DiagnosticsPublished("file:///b.py", nil)
	e.DiagnosticsPublished("file:///b.py", nil)
	if got := e.publishedCount("file:///b.py"); got != 2 {
		t.Errorf("publishedCount = %d, want 2", got)
	}
	if got := unpublished(e, uris); !reflect.DeepEqual(got, []string{"file:///a.py"}) {
		t.Errorf("unpublished = %v", got)
	}
	if len(e.changed) != 1 {
		t.Errorf("changed holds %d signals, want 1", len(e.changed))
	}
}

func TestSortedDiagnostics(t *testing.T) {
	at := func(line, char int, msg string) lsp.Diagnostic {
		pos := lsp.Position{Line: line, Character: char}
		return lsp.Diagnostic{Range: lsp.Range{Start: pos, End: pos}, Message: msg}
	}
	in := []lsp.Diagnostic{at(3, 0, "d"), at(1, 4, "b"), at(1, 2, "a"), at(1, 4, "c")}

	var got []string
	for _, d := range sortedDiagnostics(in) {
		got = append(got, d.Message)
	}
	if want := []string{"a", "b", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if in[0].Message != "d" {
		t.Error("input slice was reordered")
	}
}

func TestDiskDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.py")
	writeFile(t, path, "\ufeffname = 'é'\n")

	doc, err := loadDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Path() != path || doc.LanguageID() != "python" {
		t.Errorf("doc = %s (%s)", doc.Path(), doc.LanguageID())
	}
	if doc.Text() != "name = 'é'\n" {
		t.Errorf("Text = %q, want the BOM stripped", doc.Text())
	}

	writeFile(t, path, "name = 2\n")
	if err := doc.reload(); err != nil {
		t.Fatal(err)
	}
	if doc.Text() != "name = 2\n" {
		t.Errorf("Text after reload = %q", doc.Text())
	}

	if _, err := loadDocument(filepath.Join(t.TempDir(), "missing.py")); err == nil {
		t.Error("loadDocument of a missing file succeeded")
	}
}

func TestLanguageForPath(t *testing.T) {
	for path, want := range map[string]string{
		"a.py":       "python",
		"stubs.PYI":  "python",
		"main.go":    "go",
		"README":     "",
		"config.yml": "yaml",
	} {
		if got := languageForPath(path); got != want {
			t.Errorf("languageForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestOpenSession_NoServer(t *testing.T) {
	a := newApp(io.Discard, io.Discard)
	a.opts.timeout = time.Second
	a.clientCfg = lsp.DefaultClientConfig()
	a.clientCfg.OverrideEnv = ""
	a.clientCfg.Servers = []lsp.Command{{Program: "lspbridge-test-no-such-server"}}

	s, err := a.openSession(context.Background(), t.TempDir())
	if err == nil {
		s.close()
		t.Fatal("openSession succeeded without a server")
	}
	if !errors.Is(err, lsp.ErrServerNotFound) {
		t.Errorf("err = %v, want ErrServerNotFound", err)
	}
	if !strings.Contains(err.Error(), "lspbridge-test-no-such-server") {
		t.Errorf("err = %v, want the tried command named", err)
	}
}
