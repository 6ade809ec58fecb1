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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// ClientConfig configures a Client.
type ClientConfig struct {
	// LanguageID is used for documents synced without an explicit language.
	LanguageID string

	// ClientName and ClientVersion are sent as clientInfo on initialize.
	ClientName    string
	ClientVersion string

	// OverrideEnv names the environment variable holding a launch command
	// that is tried before Servers. Empty disables the override.
	OverrideEnv string

	// Servers is the ordered fallback list of launch commands.
	Servers []Command

	// SpawnTimeout bounds a single process start.
	SpawnTimeout time.Duration

	// ShutdownTimeout bounds the wait after terminate, and again after kill.
	ShutdownTimeout time.Duration

	// DebounceInterval is the quiet period before a scheduled sync fires.
	DebounceInterval time.Duration

	// StderrLinesPerSecond throttles forwarded server stderr lines. Zero
	// forwards every line.
	StderrLinesPerSecond float64

	// StderrBurst is the throttle bucket size.
	StderrBurst int
}

// DefaultClientConfig returns the configuration for a Python language
// server.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		LanguageID:       "python",
		ClientName:       "lspbridge",
		OverrideEnv:      DefaultOverrideEnv,
		Servers:          DefaultServers(),
		SpawnTimeout:     2 * time.Second,
		ShutdownTimeout:  1200 * time.Millisecond,
		DebounceInterval: 180 * time.Millisecond,
		StderrBurst:      50,
	}
}

// withDefaults fills zero fields from DefaultClientConfig. Servers is left
// alone so an explicitly empty list stays empty.
func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.LanguageID == "" {
		c.LanguageID = d.LanguageID
	}
	if c.ClientName == "" {
		c.ClientName = d.ClientName
	}
	if c.SpawnTimeout <= 0 {
		c.SpawnTimeout = d.SpawnTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = d.DebounceInterval
	}
	if c.StderrBurst <= 0 {
		c.StderrBurst = d.StderrBurst
	}
	return c
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the editor-side language server client.
//
// Description:
//
//	A Client owns at most one connection to a language server process. It
//	spawns the server on demand, runs the initialize handshake, keeps
//	per-document versions, correlates requests with responses, answers
//	server requests and stores published diagnostics.
//
// Thread Safety:
//
//	Safe for concurrent use. All state is owned by a single loop goroutine;
//	public methods submit work to it and wait. Response handlers and
//	Observer callbacks run on a separate delivery goroutine and may call
//	back into the Client.
type Client struct {
	cfg      ClientConfig
	launcher Launcher
	logger   *slog.Logger
	observer Observer
	getenv   func(string) string

	ops       chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	deliver   *deliveryQueue
	debouncer *Debouncer

	// Loop-owned state.
	conn         *connection
	versions     map[string]int
	pendingSyncs *pendingSyncQueue
	diagnostics  map[string][]Diagnostic
}

// NewClient creates a client and starts its loop.
//
// Inputs:
//
//	cfg - Client configuration; zero fields take defaults
//	launcher - Process launcher; nil uses ExecLauncher
//	logger - Structured logger; nil uses slog.Default()
//	observer - Event receiver; nil discards events
//
// Outputs:
//
//	*Client - The client. Call Shutdown when done.
func NewClient(cfg ClientConfig, launcher Launcher, logger *slog.Logger, observer Observer) *Client {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:          cfg,
		launcher:     launcher,
		logger:       logger.With(slog.String("component", "lsp_client")),
		observer:     observer,
		getenv:       os.Getenv,
		ops:          make(chan func()),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		deliver:      newDeliveryQueue(),
		versions:     make(map[string]int),
		pendingSyncs: newPendingSyncQueue(),
		diagnostics:  make(map[string][]Diagnostic),
	}
	c.debouncer = NewDebouncer(cfg.DebounceInterval, c.syncDocument)
	go c.run()
	return c
}

func (c *Client) run() {
	defer close(c.loopDone)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.done:
			return
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (c *Client) do(fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.ops <- op:
	case <-c.done:
		return ErrClientClosed
	}
	<-finished
	return nil
}

// postConn queues fn on the loop on behalf of conn. It gives up once conn
// is closing or the client is shut down.
func (c *Client) postConn(conn *connection, fn func()) bool {
	select {
	case <-conn.closing:
		return false
	default:
	}
	select {
	case c.ops <- fn:
		return true
	case <-conn.closing:
		return false
	case <-c.done:
		return false
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// EnsureStarted makes sure a server is running for root.
//
// Description:
//
//	The root is made absolute; a path that is not a directory falls back to
//	the working directory. If a live connection already serves the same
//	root nothing happens. A connection for a different root is stopped
//	first. Candidates are tried in order until one spawns; the initialize
//	request is then written immediately and readiness reports
//	"initializing". When no candidate spawns, readiness reports
//	"server not found".
//
// Inputs:
//
//	root - The workspace root directory
//
// Outputs:
//
//	bool - True if a connection exists (already or newly) for root
//
// Thread Safety:
//
//	Safe for concurrent use. Blocks for at most the spawn timeout per
//	candidate, plus the stop sequence when switching roots.
func (c *Client) EnsureStarted(root string) bool {
	started := false
	_ = c.do(func() {
		started = c.ensureStartedLocked(normalizeRoot(root))
	})
	return started
}

// Stop shuts down the current server, if any. Idempotent.
//
// Description:
//
//	All connection and document state is cleared immediately. If the
//	connection was ready, readiness reports "stopped". The process then
//	gets a shutdown request and exit notification, its stdin is closed and
//	it is asked to terminate; if it is still running after the shutdown
//	timeout it is killed.
func (c *Client) Stop() {
	_ = c.do(c.stopLocked)
}

// Shutdown stops the server and the client loop. Queued events are still
// delivered. The Client must not be used afterwards; public methods then
// behave as if no server is running.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		c.debouncer.Stop()
		_ = c.do(c.stopLocked)
		close(c.done)
		<-c.loopDone
		c.deliver.close()
	})
}

// IsReady reports whether the initialize handshake has completed.
func (c *Client) IsReady() bool {
	ready := false
	_ = c.do(func() {
		ready = c.conn != nil && c.conn.ready
	})
	return ready
}

// RootPath returns the root of the current connection, or "" if none.
func (c *Client) RootPath() string {
	var root string
	_ = c.do(func() {
		if c.conn != nil {
			root = c.conn.root
		}
	})
	return root
}

// ServerCommand returns the launch command of the current connection.
func (c *Client) ServerCommand() (Command, bool) {
	var cmd Command
	ok := false
	_ = c.do(func() {
		if c.conn != nil {
			cmd, ok = c.conn.command, true
		}
	})
	return cmd, ok
}

// Capabilities returns a copy of the server capabilities recorded from the
// handshake. It is empty until the connection is ready.
func (c *Client) Capabilities() ServerCapabilities {
	caps := ServerCapabilities{}
	_ = c.do(func() {
		if c.conn == nil {
			return
		}
		for k, v := range c.conn.capabilities {
			caps[k] = v
		}
	})
	return caps
}

func normalizeRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err == nil {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			return filepath.Clean(abs)
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return abs
}

func (c *Client) ensureStartedLocked(root string) bool {
	if conn := c.conn; conn != nil {
		if conn.hasExited() {
			c.handleExitLocked(conn)
		} else {
			if samePath(conn.root, root) {
				return true
			}
			c.stopLocked()
		}
	}
	return c.startLocked(root)
}

func (c *Client) startLocked(root string) bool {
	candidates := buildCandidates(c.cfg, c.getenv, func(msg string) {
		c.logger.Warn(msg)
		c.emitLog(msg)
	})

	for _, cand := range candidates {
		if !c.launcher.Resolve(cand) {
			c.logger.Debug("launch candidate not resolvable", slog.String("command", cand.String()))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SpawnTimeout)
		proc, err := c.launcher.Start(ctx, cand, root)
		cancel()
		if err != nil {
			recordServerSpawn(context.Background(), cand.Program, false)
			c.logger.Debug("launch candidate failed",
				slog.String("command", cand.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		recordServerSpawn(context.Background(), cand.Program, true)

		conn := newConnection(proc, root, cand)
		c.conn = conn
		c.resetStateLocked()
		c.startPumps(conn)

		c.logger.Info("language server started",
			slog.String("connection_id", conn.id),
			slog.String("command", cand.String()),
			slog.String("root", root),
			slog.Int("pid", proc.Pid()),
		)
		c.emitLog("Starting language server: " + cand.String())
		c.sendInitializeLocked(conn)
		c.emitReady(false, "initializing")
		return true
	}

	names := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		names = append(names, cand.Program)
	}
	c.logger.Warn("no language server found", slog.Any("candidates", names))
	c.emitReady(false, "server not found")
	c.emitLog("No language server found. Tried: " + strings.Join(names, ", ") + ".")
	return false
}

func (c *Client) sendInitializeLocked(conn *connection) {
	rootURI := PathToURI(conn.root)
	name := filepath.Base(conn.root)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = conn.root
	}

	params := InitializeParams{
		ProcessID:        os.Getpid(),
		ClientInfo:       &ClientInfo{Name: c.cfg.ClientName, Version: c.cfg.ClientVersion},
		RootURI:          rootURI,
		Capabilities:     defaultClientCapabilities(),
		WorkspaceFolders: []WorkspaceFolder{{URI: rootURI, Name: name}},
	}
	c.sendRequestLocked(conn, "initialize", params, func(result json.RawMessage, err *ResponseError) {
		c.onInitializeResponse(conn, result, err)
	})
}

// onInitializeResponse runs on the loop.
func (c *Client) onInitializeResponse(conn *connection, result json.RawMessage, respErr *ResponseError) {
	if c.conn != conn {
		return
	}
	if respErr != nil {
		c.logger.Warn("initialize failed",
			slog.String("connection_id", conn.id),
			slog.Int("code", respErr.Code),
			slog.String("message", respErr.Message),
		)
		c.emitLog("Language server initialize failed: " + respErr.Error())
		c.emitReady(false, "initialize failed")
		return
	}

	conn.capabilities = parseCapabilities(result)
	c.sendNotificationLocked(conn, "initialized", struct{}{})
	conn.ready = true

	label := conn.command.String()
	c.logger.Info("language server ready",
		slog.String("connection_id", conn.id),
		slog.String("command", label),
	)
	c.emitReady(true, "ready ("+label+")")
	c.emitLog("Language server initialized: " + label)
	c.flushPendingLocked()
}

// parseCapabilities extracts result.capabilities, or an empty map.
func parseCapabilities(result json.RawMessage) ServerCapabilities {
	var shape struct {
		Capabilities json.RawMessage `json:"capabilities"`
	}
	if len(result) == 0 || json.Unmarshal(result, &shape) != nil {
		return ServerCapabilities{}
	}
	caps := ServerCapabilities{}
	if err := json.Unmarshal(shape.Capabilities, &caps); err != nil || caps == nil {
		return ServerCapabilities{}
	}
	return caps
}

func (c *Client) stopLocked() {
	conn := c.conn
	if conn == nil {
		c.resetStateLocked()
		return
	}
	c.conn = nil
	c.resetStateLocked()
	if conn.ready {
		c.emitReady(false, "stopped")
	}

	conn.terminate(c.cfg.ShutdownTimeout, c.cfg.ShutdownTimeout)
	c.logger.Info("language server stopped",
		slog.String("connection_id", conn.id),
		slog.Bool("exited", conn.hasExited()),
	)
}

// handleExitLocked processes an unexpected process exit. Events from a
// connection that is no longer current are ignored.
func (c *Client) handleExitLocked(conn *connection) {
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.resetStateLocked()
	conn.markClosing()
	_ = conn.proc.Stdin().Close()

	c.logger.Warn("language server exited",
		slog.String("connection_id", conn.id),
		slog.Int("exit_code", conn.exitCode),
	)
	c.emitLog(fmt.Sprintf("Language server exited with code %d.", conn.exitCode))
	c.emitReady(false, "server exited")
}

// resetStateLocked clears everything scoped to a connection.
func (c *Client) resetStateLocked() {
	c.versions = make(map[string]int)
	c.pendingSyncs = newPendingSyncQueue()
	c.diagnostics = make(map[string][]Diagnostic)
}

// =============================================================================
// PROCESS I/O
// =============================================================================

// startPumps reads stdout and stderr until EOF, then reaps the process and
// reports the exit to the loop.
func (c *Client) startPumps(conn *connection) {
	var g errgroup.Group
	g.Go(func() error { return c.pumpStdout(conn) })
	g.Go(func() error { return c.pumpStderr(conn) })

	go func() {
		if err := g.Wait(); err != nil {
			c.logger.Debug("server pipe closed with error",
				slog.String("connection_id", conn.id),
				slog.String("error", err.Error()),
			)
		}
		code, err := conn.proc.Wait()
		if err != nil {
			c.logger.Debug("server wait returned error",
				slog.String("connection_id", conn.id),
				slog.String("error", err.Error()),
			)
		}
		conn.exitCode = code
		close(conn.exited)
		c.postConn(conn, func() { c.handleExitLocked(conn) })
	}()
}

func (c *Client) pumpStdout(conn *connection) error {
	r := conn.proc.Stdout()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			c.postConn(conn, func() { c.onStdoutLocked(conn, chunk) })
		}
		if err != nil {
			if isClosedPipe(err) {
				return nil
			}
			return fmt.Errorf("read stdout: %w", err)
		}
	}
}

func (c *Client) pumpStderr(conn *connection) error {
	var limiter *rate.Limiter
	if c.cfg.StderrLinesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.StderrLinesPerSecond), c.cfg.StderrBurst)
	}
	dropped := 0
	reportDropped := func() {
		if dropped == 0 {
			return
		}
		recordStderrDropped(context.Background(), dropped)
		c.logger.Warn("server stderr lines dropped",
			slog.String("connection_id", conn.id),
			slog.Int("count", dropped),
		)
		dropped = 0
	}

	r := conn.proc.Stderr()
	buf := make([]byte, 8*1024)
	for {
		n, err := r.Read(buf)
		for _, text := range stderrLines(buf[:n]) {
			if limiter != nil && !limiter.Allow() {
				dropped++
				continue
			}
			reportDropped()
			c.logger.Debug("server stderr", slog.String("connection_id", conn.id), slog.String("line", text))
			c.postConn(conn, func() {
				if c.conn == conn {
					c.emitLog("[server] " + text)
				}
			})
		}
		if err != nil {
			reportDropped()
			if isClosedPipe(err) {
				return nil
			}
			return fmt.Errorf("read stderr: %w", err)
		}
	}
}

// stderrLines splits one stderr read into non-blank lines. A trailing
// fragment without a newline is returned as a line of its own.
func stderrLines(chunk []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(chunk), "\n") {
		if text := strings.TrimSpace(line); text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}

func isClosedPipe(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// onStdoutLocked feeds a chunk to the decoder and dispatches every complete
// message.
func (c *Client) onStdoutLocked(conn *connection, chunk []byte) {
	if c.conn != conn {
		return
	}
	conn.decoder.Feed(chunk)
	for c.conn == conn {
		raw, err := conn.decoder.Next()
		if err != nil {
			recordProtocolError(context.Background())
			c.logger.Warn("dropping malformed message",
				slog.String("connection_id", conn.id),
				slog.String("error", err.Error()),
			)
			c.emitLog("LSP parse error: " + err.Error())
			continue
		}
		if raw == nil {
			return
		}
		c.handleMessageLocked(conn, raw)
	}
}

// =============================================================================
// EVENTS
// =============================================================================

func (c *Client) emitReady(ready bool, message string) {
	obs := c.observer
	c.deliver.push(func() { obs.ReadyChanged(ready, message) })
}

func (c *Client) emitLog(text string) {
	obs := c.observer
	c.deliver.push(func() { obs.LogMessage(text) })
}

func (c *Client) emitDiagnostics(uri string, diagnostics []Diagnostic) {
	obs := c.observer
	snapshot := append([]Diagnostic(nil), diagnostics...)
	c.deliver.push(func() { obs.DiagnosticsPublished(uri, snapshot) })
}
