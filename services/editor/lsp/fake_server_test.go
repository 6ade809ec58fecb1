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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 5 * time.Millisecond
)

// =============================================================================
// FAKE LANGUAGE SERVER
// =============================================================================

type fakeServerOptions struct {
	// holdInitialize delays the initialize response until release is called.
	holdInitialize bool

	// initError answers initialize with an error.
	initError bool

	// capabilities is returned from initialize.
	capabilities map[string]interface{}

	// respond answers requests other than initialize and shutdown. A nil
	// func answers null.
	respond func(msg IncomingMessage) (interface{}, *ResponseError)

	// stubborn ignores the exit notification, stdin EOF and Terminate; only
	// Kill ends it.
	stubborn bool
}

// fakeServer is an in-process language server that implements Process over
// io.Pipe. Outgoing messages go through a queue so reading stdin never
// blocks on the client draining stdout.
type fakeServer struct {
	command Command
	dir     string
	opts    fakeServerOptions

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	outbox      chan []byte
	releaseInit chan struct{}
	releaseOnce sync.Once

	mu       sync.Mutex
	received []IncomingMessage

	exitOnce   sync.Once
	done       chan struct{}
	exitCode   int
	terminated atomic.Int32
}

func newFakeServer(command Command, dir string, opts fakeServerOptions) *fakeServer {
	s := &fakeServer{
		command:     command,
		dir:         dir,
		opts:        opts,
		outbox:      make(chan []byte, 1024),
		releaseInit: make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.stdinR, s.stdinW = io.Pipe()
	s.stdoutR, s.stdoutW = io.Pipe()
	s.stderrR, s.stderrW = io.Pipe()
	go s.serve()
	go s.writeLoop()
	return s
}

func (s *fakeServer) Pid() int              { return 4242 }
func (s *fakeServer) Stdin() io.WriteCloser { return s.stdinW }
func (s *fakeServer) Stdout() io.Reader     { return s.stdoutR }
func (s *fakeServer) Stderr() io.Reader     { return s.stderrR }

func (s *fakeServer) Wait() (int, error) {
	<-s.done
	return s.exitCode, nil
}

func (s *fakeServer) Terminate() error {
	s.terminated.Add(1)
	if !s.opts.stubborn {
		s.exit(0)
	}
	return nil
}

func (s *fakeServer) Kill() error {
	s.exit(137)
	return nil
}

// exit simulates the process ending with code.
func (s *fakeServer) exit(code int) {
	s.exitOnce.Do(func() {
		s.exitCode = code
		close(s.done)
		_ = s.stdoutW.Close()
		_ = s.stderrW.Close()
		_ = s.stdinR.Close()
	})
}

func (s *fakeServer) release() {
	s.releaseOnce.Do(func() { close(s.releaseInit) })
}

func (s *fakeServer) serve() {
	d := NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := s.stdinR.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
			for {
				raw, derr := d.Next()
				if derr != nil {
					continue
				}
				if raw == nil {
					break
				}
				s.handle(raw)
			}
		}
		if err != nil {
			if !s.opts.stubborn {
				s.exit(0)
			}
			return
		}
	}
}

func (s *fakeServer) writeLoop() {
	for {
		select {
		case data := <-s.outbox:
			if _, err := s.stdoutW.Write(data); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *fakeServer) handle(raw json.RawMessage) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()

	switch {
	case msg.Kind == KindNotification && msg.Method == "exit":
		if !s.opts.stubborn {
			s.exit(0)
		}

	case msg.Kind == KindServerRequest && msg.Method == "initialize":
		answer := func() {
			if s.opts.initError {
				s.replyError(msg.ID, &ResponseError{Code: CodeInternalError, Message: "boom"})
				return
			}
			caps := s.opts.capabilities
			if caps == nil {
				caps = map[string]interface{}{"completionProvider": map[string]interface{}{}, "definitionProvider": true}
			}
			s.reply(msg.ID, map[string]interface{}{"capabilities": caps})
		}
		if s.opts.holdInitialize {
			go func() {
				select {
				case <-s.releaseInit:
					answer()
				case <-s.done:
				}
			}()
			return
		}
		answer()

	case msg.Kind == KindServerRequest && msg.Method == "shutdown":
		s.reply(msg.ID, nil)

	case msg.Kind == KindServerRequest:
		if s.opts.respond == nil {
			s.reply(msg.ID, nil)
			return
		}
		result, respErr := s.opts.respond(msg)
		if respErr != nil {
			s.replyError(msg.ID, respErr)
			return
		}
		s.reply(msg.ID, result)
	}
}

func (s *fakeServer) sendRaw(data []byte) {
	select {
	case s.outbox <- data:
	case <-s.done:
	}
}

func (s *fakeServer) send(payload interface{}) {
	data, err := Encode(payload)
	if err != nil {
		panic(err)
	}
	s.sendRaw(data)
}

func (s *fakeServer) reply(id json.RawMessage, result interface{}) {
	s.send(Response{JSONRPC: JSONRPCVersion, ID: id, Result: result})
}

func (s *fakeServer) replyError(id json.RawMessage, respErr *ResponseError) {
	s.send(map[string]interface{}{"jsonrpc": JSONRPCVersion, "id": id, "error": respErr})
}

func (s *fakeServer) notify(method string, params interface{}) {
	s.send(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

func (s *fakeServer) request(id interface{}, method string, params interface{}) {
	s.send(map[string]interface{}{"jsonrpc": JSONRPCVersion, "id": id, "method": method, "params": params})
}

func (s *fakeServer) stderr(line string) {
	go func() { _, _ = s.stderrW.Write([]byte(line)) }()
}

func (s *fakeServer) messages() []IncomingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]IncomingMessage(nil), s.received...)
}

func (s *fakeServer) withMethod(method string) []IncomingMessage {
	var out []IncomingMessage
	for _, m := range s.messages() {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeServer) responseTo(id string) (IncomingMessage, bool) {
	for _, m := range s.messages() {
		if m.Kind == KindResponse && string(m.ID) == id {
			return m, true
		}
	}
	return IncomingMessage{}, false
}

// waitMethod waits until at least n messages with method were received.
func (s *fakeServer) waitMethod(t *testing.T, method string, n int) []IncomingMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.withMethod(method)) >= n
	}, waitTimeout, waitTick, "waiting for %d %s message(s)", n, method)
	return s.withMethod(method)
}

func (s *fakeServer) waitResponse(t *testing.T, id string) IncomingMessage {
	t.Helper()
	var got IncomingMessage
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = s.responseTo(id)
		return ok
	}, waitTimeout, waitTick, "waiting for response to %s", id)
	return got
}

// =============================================================================
// FAKE LAUNCHER
// =============================================================================

type fakeLauncher struct {
	opts         fakeServerOptions
	unresolvable map[string]bool
	failing      map[string]bool

	mu       sync.Mutex
	attempts []Command
	servers  []*fakeServer
}

func newFakeLauncher(opts fakeServerOptions) *fakeLauncher {
	return &fakeLauncher{
		opts:         opts,
		unresolvable: map[string]bool{},
		failing:      map[string]bool{},
	}
}

func (l *fakeLauncher) Resolve(cmd Command) bool {
	return !l.unresolvable[cmd.Program]
}

func (l *fakeLauncher) Start(_ context.Context, cmd Command, dir string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, cmd)
	if l.failing[cmd.Program] {
		return nil, errors.New("exec: not found")
	}
	s := newFakeServer(cmd, dir, l.opts)
	l.servers = append(l.servers, s)
	return s, nil
}

func (l *fakeLauncher) started() []*fakeServer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeServer(nil), l.servers...)
}

func (l *fakeLauncher) latest(t *testing.T) *fakeServer {
	t.Helper()
	servers := l.started()
	require.NotEmpty(t, servers, "no server started")
	return servers[len(servers)-1]
}

func (l *fakeLauncher) tried() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.attempts...)
}

// =============================================================================
// RECORDING OBSERVER
// =============================================================================

type readyEvent struct {
	ready   bool
	message string
}

type recorder struct {
	mu          sync.Mutex
	ready       []readyEvent
	logs        []string
	diagnostics map[string][][]Diagnostic
}

func newRecorder() *recorder {
	return &recorder{diagnostics: map[string][][]Diagnostic{}}
}

func (r *recorder) ReadyChanged(ready bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, readyEvent{ready: ready, message: message})
}

func (r *recorder) DiagnosticsPublished(uri string, diagnostics []Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics[uri] = append(r.diagnostics[uri], diagnostics)
}

func (r *recorder) LogMessage(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, text)
}

func (r *recorder) readyEvents() []readyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]readyEvent(nil), r.ready...)
}

func (r *recorder) logLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

func (r *recorder) diagnosticsFor(uri string) [][]Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]Diagnostic(nil), r.diagnostics[uri]...)
}

func (r *recorder) hasReady(ready bool, message string) bool {
	for _, e := range r.readyEvents() {
		if e.ready == ready && e.message == message {
			return true
		}
	}
	return false
}

func (r *recorder) waitReady(t *testing.T, ready bool, message string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.hasReady(ready, message)
	}, waitTimeout, waitTick, "waiting for ready=%v %q", ready, message)
}

func (r *recorder) hasLog(text string) bool {
	for _, l := range r.logLines() {
		if l == text {
			return true
		}
	}
	return false
}

// =============================================================================
// HELPERS
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.OverrideEnv = ""
	cfg.Servers = []Command{{Program: "fake-lsp"}}
	cfg.ShutdownTimeout = 300 * time.Millisecond
	cfg.DebounceInterval = 30 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, launcher *fakeLauncher) (*Client, *recorder) {
	t.Helper()
	return newTestClientWithConfig(t, launcher, testConfig())
}

func newTestClientWithConfig(t *testing.T, launcher *fakeLauncher, cfg ClientConfig) (*Client, *recorder) {
	t.Helper()
	rec := newRecorder()
	c := NewClient(cfg, launcher, testLogger(), rec)
	t.Cleanup(c.Shutdown)
	return c, rec
}

// startReady starts a client against a fresh fake server and waits for the
// handshake to complete.
func startReady(t *testing.T, opts fakeServerOptions) (*Client, *fakeLauncher, *fakeServer, *recorder) {
	t.Helper()
	launcher := newFakeLauncher(opts)
	c, rec := newTestClient(t, launcher)
	require.True(t, c.EnsureStarted(t.TempDir()))
	rec.waitReady(t, true, "ready (fake-lsp)")
	return c, launcher, launcher.latest(t), rec
}

// testDoc is an in-memory buffer.
type testDoc struct {
	mu           sync.Mutex
	path         string
	text         string
	transactions int
}

func newTestDoc(path, text string) *testDoc {
	return &testDoc{path: path, text: text}
}

func (d *testDoc) Path() string       { return d.path }
func (d *testDoc) LanguageID() string { return "python" }

func (d *testDoc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *testDoc) setText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

func (d *testDoc) Transact(fn func(replace func(start, end int, text string))) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transactions++
	fn(func(start, end int, text string) {
		d.text = d.text[:start] + text + d.text[end:]
	})
}

func (d *testDoc) transactionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transactions
}
