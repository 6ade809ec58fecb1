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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/lspbridge/services/editor/lsp"
)

// sessionEvents turns client events into channels a command can wait on.
//
// ready is closed on the first successful handshake. failed receives the
// status text when the server gives up before becoming ready. lost is
// closed when readiness is lost after having been gained. published is
// signalled whenever a diagnostics publication arrives.
type sessionEvents struct {
	logger *slog.Logger

	mu        sync.Mutex
	wasReady  bool
	published map[string]int

	ready     chan struct{}
	failed    chan string
	lost      chan struct{}
	changed   chan struct{}
	readyOnce sync.Once
	lostOnce  sync.Once
}

func newSessionEvents(logger *slog.Logger) *sessionEvents {
	return &sessionEvents{
		logger:    logger,
		published: make(map[string]int),
		ready:     make(chan struct{}),
		failed:    make(chan string, 1),
		lost:      make(chan struct{}),
		changed:   make(chan struct{}, 1),
	}
}

func (e *sessionEvents) ReadyChanged(ready bool, message string) {
	e.mu.Lock()
	wasReady := e.wasReady
	if ready {
		e.wasReady = true
	}
	e.mu.Unlock()

	switch {
	case ready:
		e.readyOnce.Do(func() { close(e.ready) })
	case wasReady:
		e.lostOnce.Do(func() { close(e.lost) })
	case message != "initializing":
		select {
		case e.failed <- message:
		default:
		}
	}
}

func (e *sessionEvents) DiagnosticsPublished(uri string, _ []lsp.Diagnostic) {
	e.mu.Lock()
	e.published[uri]++
	e.mu.Unlock()
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

func (e *sessionEvents) LogMessage(text string) {
	e.logger.Debug(text, slog.String("source", "server"))
}

// publishedCount returns how many publications arrived for uri.
func (e *sessionEvents) publishedCount(uri string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published[uri]
}

// session is one running language server plus the files opened on it.
type session struct {
	client  *lsp.Client
	events  *sessionEvents
	root    string
	timeout time.Duration
	logger  *slog.Logger

	docs map[string]*diskDocument
}

// openSession starts a server for root and waits for the handshake.
func (a *app) openSession(ctx context.Context, root string, extra ...lsp.Observer) (*session, error) {
	logger := a.slog().With(slog.String("component", "session"))
	events := newSessionEvents(logger)
	observer := append(lsp.MultiObserver{events}, extra...)

	s := &session{
		client:  lsp.NewClient(a.clientCfg, a.launcher, a.slog(), observer),
		events:  events,
		root:    root,
		timeout: a.opts.timeout,
		logger:  logger,
		docs:    make(map[string]*diskDocument),
	}
	if !s.client.EnsureStarted(root) {
		s.close()
		return nil, fmt.Errorf("%w: no language server could be started (tried %s)", lsp.ErrServerNotFound, candidateNames(a.clientCfg))
	}
	if err := s.waitReady(ctx); err != nil {
		s.close()
		return nil, err
	}
	if cmd, ok := s.client.ServerCommand(); ok {
		logger.Info("session ready", slog.String("command", cmd.String()), slog.String("root", s.client.RootPath()))
	}
	return s, nil
}

func candidateNames(cfg lsp.ClientConfig) string {
	names := make([]string, 0, len(cfg.Servers)+1)
	if cfg.OverrideEnv != "" {
		names = append(names, "$"+cfg.OverrideEnv)
	}
	for _, c := range cfg.Servers {
		names = append(names, c.Program)
	}
	return strings.Join(names, ", ")
}

func (s *session) waitReady(ctx context.Context) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-s.events.ready:
		return nil
	case msg := <-s.events.failed:
		return fmt.Errorf("language server failed to start: %s", msg)
	case <-s.events.lost:
		return errServerLost
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("language server not ready after %s", s.timeout)
	}
}

// call sends one request and waits for its answer. A null result is
// returned as (nil, nil).
func (s *session) call(ctx context.Context, send func(lsp.ResponseHandler) bool) (json.RawMessage, error) {
	type reply struct {
		result json.RawMessage
		err    *lsp.ResponseError
	}
	ch := make(chan reply, 1)
	send(func(result json.RawMessage, err *lsp.ResponseError) {
		ch <- reply{result: result, err: err}
	})

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.result, nil
	case <-s.events.lost:
		return nil, errServerLost
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no answer from the language server after %s", s.timeout)
	}
}

// open loads path from disk and syncs it before returning.
func (s *session) open(path string) (*diskDocument, error) {
	if doc, ok := s.docs[path]; ok {
		return doc, nil
	}
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	s.docs[path] = doc
	s.client.SyncNow(doc)
	return doc, nil
}

func (s *session) close() {
	s.client.Shutdown()
}
