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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/lspbridge/services/editor/config"
	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

func TestClientConfig_ServerOverride(t *testing.T) {
	cfg := config.DefaultConfig()

	got, err := clientConfig(cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.OverrideEnv != lsp.DefaultOverrideEnv {
		t.Errorf("OverrideEnv = %q, want %q", got.OverrideEnv, lsp.DefaultOverrideEnv)
	}
	if len(got.Servers) == 0 {
		t.Error("default configuration has no servers")
	}

	got, err = clientConfig(cfg, `pyright-langserver --stdio --log "a b"`)
	if err != nil {
		t.Fatal(err)
	}
	want := lsp.Command{Program: "pyright-langserver", Args: []string{"--stdio", "--log", "a b"}}
	if len(got.Servers) != 1 || got.Servers[0].String() != want.String() {
		t.Errorf("Servers = %v, want [%v]", got.Servers, want)
	}
	if got.OverrideEnv != "" {
		t.Errorf("OverrideEnv = %q, want it disabled", got.OverrideEnv)
	}

	for _, bad := range []string{`"unterminated`, "   "} {
		if _, err := clientConfig(cfg, bad); err == nil {
			t.Errorf("clientConfig(%q) succeeded, want error", bad)
		}
	}
}

func TestDetectRoot(t *testing.T) {
	base := t.TempDir()
	project := filepath.Join(base, "project")
	nested := filepath.Join(project, "src", "pkg")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(project, "pyproject.toml"), "")
	file := filepath.Join(nested, "mod.py")
	writeFile(t, file, "")

	if got := detectRoot(file); got != project {
		t.Errorf("detectRoot(file) = %q, want %q", got, project)
	}
	if got := detectRoot(nested); got != project {
		t.Errorf("detectRoot(dir) = %q, want %q", got, project)
	}

	a := &app{opts: globalOptions{root: "/explicit"}}
	if got := a.rootFor(file); got != "/explicit" {
		t.Errorf("rootFor with --root = %q", got)
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		contains string
	}{
		{name: "plain failure", err: errors.New("boom"), code: exitFailure, contains: "ERROR: boom"},
		{name: "findings with message", err: findings("%w at a.py:1:1", errNoResult), code: exitFindings, contains: "no result at a.py:1:1"},
		{name: "silent status", err: &ExitError{Code: exitFindings}, code: exitFindings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			a := newApp(&stdout, &stderr)
			if got := a.reportError(tt.err); got != tt.code {
				t.Errorf("reportError = %d, want %d", got, tt.code)
			}
			if tt.contains == "" && stderr.Len() != 0 {
				t.Errorf("expected no output, got %q", stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.contains) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.contains)
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout = %q, want empty", stdout.String())
			}
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	err := findings("%w: nothing", errNoResult)
	if !errors.Is(err, errNoResult) {
		t.Error("findings error does not wrap errNoResult")
	}
	if (&ExitError{Code: 3}).Error() != "exit status 3" {
		t.Error("unexpected message for bare ExitError")
	}
}

func TestExecute_Failures(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lspbridge.yaml")
	file := filepath.Join(dir, "a.py")
	writeFile(t, file, "x = 1\n")

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{
			name:     "unknown command",
			args:     []string{"frobnicate"},
			contains: "unknown command",
		},
		{
			name:     "missing argument",
			args:     []string{"--config", cfgPath, "definition"},
			contains: "accepts 1 arg",
		},
		{
			name:     "bad position",
			args:     []string{"--config", cfgPath, "definition", file},
			contains: "want file:line",
		},
		{
			name:     "no server",
			args:     []string{"--config", cfgPath, "--server", "lspbridge-test-no-such-server", "--log-level", "error", "definition", file + ":1:1"},
			contains: "no language server could be started",
		},
		{
			name:     "bad log level",
			args:     []string{"--config", cfgPath, "--log-level", "loud", "diagnostics", file},
			contains: "unknown log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(context.Background(), tt.args, &stdout, &stderr)
			if code != exitFailure {
				t.Errorf("exit = %d, want %d (stderr %q)", code, exitFailure, stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.contains) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.contains)
			}
		})
	}

	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("default configuration was not written: %v", err)
	}
}
