// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"Error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFromSlog(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want Level
	}{
		{slog.LevelDebug - 4, LevelDebug},
		{slog.LevelDebug, LevelDebug},
		{slog.LevelInfo, LevelInfo},
		{slog.LevelInfo + 2, LevelInfo},
		{slog.LevelWarn, LevelWarn},
		{slog.LevelError + 4, LevelError},
	}
	for _, tt := range tests {
		if got := levelFromSlog(tt.in); got != tt.want {
			t.Errorf("levelFromSlog(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatAuto, "auto": FormatAuto, "TEXT": FormatText, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded")
	}
}

// =============================================================================
// Console Output Tests
// =============================================================================

func TestNew_ConsoleFormats(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Output: &buf, Format: FormatText})
		logger.Slog().Info("server started", "pid", 42)

		out := buf.String()
		if !strings.Contains(out, "msg=\"server started\"") || !strings.Contains(out, "pid=42") {
			t.Errorf("text output missing fields: %q", out)
		}
		if !strings.Contains(out, "service=lspbridge") {
			t.Errorf("default service missing: %q", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Output: &buf, Format: FormatJSON, Service: "cli"})
		logger.Slog().Warn("dropped", "count", 3)

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("output is not JSON: %v: %q", err, buf.String())
		}
		if rec["msg"] != "dropped" || rec["service"] != "cli" || rec["count"] != float64(3) {
			t.Errorf("unexpected record: %v", rec)
		}
	})

	t.Run("auto on a non-terminal writer is text", func(t *testing.T) {
		var buf bytes.Buffer
		New(Config{Output: &buf}).Slog().Info("hello")
		if strings.HasPrefix(buf.String(), "{") {
			t.Errorf("plain writer got JSON: %q", buf.String())
		}
	})

	t.Run("auto on a regular file is json", func(t *testing.T) {
		f, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if !useJSON(FormatAuto, f) {
			t.Error("useJSON(auto, file) = false")
		}
	})
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelWarn, Format: FormatText})
	logger.Slog().Debug("debug line")
	logger.Slog().Info("info line")
	logger.Slog().Warn("warn line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("records below Warn were written: %q", out)
	}
	if !strings.Contains(out, "warn line") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Quiet: true})
	logger.Slog().Error("nobody hears this")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

// =============================================================================
// File Logging Tests
// =============================================================================

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	logger := New(Config{Output: &console, Format: FormatText, LogDir: dir, Service: "bridge"})

	logger.Slog().Info("to both", "n", 1)
	path := logger.FilePath()
	if path == "" {
		t.Fatal("file logging not enabled")
	}
	if !strings.HasPrefix(filepath.Base(path), "bridge_") || filepath.Ext(path) != ".log" {
		t.Errorf("unexpected log file name %q", path)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file log is not JSON: %v: %q", err, data)
	}
	if rec["msg"] != "to both" {
		t.Errorf("file record = %v", rec)
	}
	if !strings.Contains(console.String(), "to both") {
		t.Error("console did not receive the record")
	}

	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestNew_FileLoggingFailureFallsBack(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	var console bytes.Buffer
	logger := New(Config{Output: &console, Format: FormatText, LogDir: filepath.Join(blocker, "logs")})
	defer logger.Close()

	if logger.FilePath() != "" {
		t.Error("file logging enabled under a regular file")
	}
	if !strings.Contains(console.String(), "file logging disabled") {
		t.Errorf("no warning on console: %q", console.String())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := map[string]string{
		"~/.lspbridge/logs": filepath.Join(home, ".lspbridge/logs"),
		"~":                 home,
		"/var/log":          "/var/log",
		"~user/logs":        "~user/logs",
		"":                  "",
	}
	for in, want := range tests {
		if got := expandPath(in); got != want {
			t.Errorf("expandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestExporter_ReceivesRecords(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp, Level: LevelInfo})

	child := logger.Slog().With("component", "lsp_client")
	child.Debug("filtered")
	child.Info("language server started", slog.String("command", "pylsp"), slog.Int("pid", 7))
	child.WithGroup("edit").Warn("skipped file", "path", "/tmp/a.py")

	entries := exp.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}

	started := entries[0]
	if started.Level != LevelInfo || started.Service != "lspbridge" {
		t.Errorf("entry = %+v", started)
	}
	if started.Attrs["component"] != "lsp_client" || started.Attrs["command"] != "pylsp" || started.Attrs["pid"] != int64(7) {
		t.Errorf("attrs = %v", started.Attrs)
	}
	if _, ok := started.Attrs["service"]; ok {
		t.Error("service should be a field, not an attribute")
	}

	skipped := exp.Find("skipped file")
	if len(skipped) != 1 {
		t.Fatalf("Find() = %v", skipped)
	}
	if skipped[0].Attrs["edit.path"] != "/tmp/a.py" {
		t.Errorf("group attrs = %v", skipped[0].Attrs)
	}
	if skipped[0].Level != LevelWarn {
		t.Errorf("level = %v", skipped[0].Level)
	}
}

func TestExporter_NestedGroupAttr(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})
	logger.Slog().Info("applied", slog.Group("result", slog.Int("files", 2), slog.Int("edits", 5)))

	attrs := exp.Entries()[0].Attrs
	if attrs["result.files"] != int64(2) || attrs["result.edits"] != int64(5) {
		t.Errorf("attrs = %v", attrs)
	}
}

type failingExporter struct {
	BufferedExporter
	closed bool
}

func (e *failingExporter) Flush(context.Context) error { return errors.New("flush failed") }
func (e *failingExporter) Close() error {
	e.closed = true
	return nil
}

func TestClose_ReportsExporterErrors(t *testing.T) {
	exp := &failingExporter{}
	logger := New(Config{Quiet: true, Exporter: exp})

	err := logger.Close()
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Errorf("Close() = %v, want flush error", err)
	}
	if !exp.closed {
		t.Error("exporter was not closed after a flush error")
	}
}

func TestWith_SharesResources(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: FormatText})
	child := logger.With("connection_id", "abc")
	child.Slog().Info("ready")

	if !strings.Contains(buf.String(), "connection_id=abc") {
		t.Errorf("child attrs missing: %q", buf.String())
	}
	if child.FilePath() != logger.FilePath() {
		t.Error("child does not share the log file")
	}
}

func TestDefault(t *testing.T) {
	if Default().Slog() == nil {
		t.Fatal("Default() returned a nil slog logger")
	}
}
