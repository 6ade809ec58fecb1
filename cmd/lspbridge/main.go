// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command lspbridge drives a language server from the command line.
//
// Usage:
//
//	lspbridge diagnostics app/models.py app/views.py
//	lspbridge definition app/views.py:42:17
//	lspbridge complete app/views.py:42:17 --limit 20
//	lspbridge rename app/models.py:10:7 Customer --dry-run
//	lspbridge watch . --listen 127.0.0.1:7070
//
// Positions are 1-based line and column, with the column counted in
// characters. The server is picked from ~/.lspbridge/lspbridge.yaml, the
// LSPBRIDGE_SERVER_COMMAND environment variable or --server.
//
// Exit status is 0 on success, 1 when the command found problems (error
// diagnostics, no definition, no edits) and 2 when it could not run.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(stdout, stderr)
	defer a.teardown()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return a.reportError(err)
	}
	return exitOK
}
