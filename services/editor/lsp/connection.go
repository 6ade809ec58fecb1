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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingRequest is one outstanding request awaiting its response.
// The handler runs on the client loop.
type pendingRequest struct {
	method  string
	started time.Time
	handler func(result json.RawMessage, err *ResponseError)
}

// connection is one live language server process and everything scoped to
// it. A new connection starts with a fresh decoder, request id 1 and an
// empty pending table.
//
// All fields except closing, exited and exitCode are owned by the client
// loop.
type connection struct {
	id           string
	proc         Process
	root         string
	command      Command
	capabilities ServerCapabilities
	ready        bool

	decoder *Decoder
	nextID  int64
	pending map[int64]pendingRequest

	// closing is closed when the client no longer wants events from this
	// connection. Pumps stop posting to the loop once it is closed.
	closing   chan struct{}
	closeOnce sync.Once

	// exited is closed after the process has been reaped; exitCode is valid
	// from then on.
	exited   chan struct{}
	exitCode int
}

func newConnection(proc Process, root string, command Command) *connection {
	return &connection{
		id:      uuid.NewString(),
		proc:    proc,
		root:    root,
		command: command,
		decoder: NewDecoder(),
		nextID:  1,
		pending: make(map[int64]pendingRequest),
		closing: make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (c *connection) allocateID() int64 {
	id := c.nextID
	c.nextID++
	return id
}

// write frames and writes one message to the server's stdin.
func (c *connection) write(payload interface{}) error {
	data, err := Encode(payload)
	if err != nil {
		return err
	}
	if _, err := c.proc.Stdin().Write(data); err != nil {
		return fmt.Errorf("write to server: %w", err)
	}
	return nil
}

func (c *connection) markClosing() {
	c.closeOnce.Do(func() { close(c.closing) })
}

func (c *connection) hasExited() bool {
	select {
	case <-c.exited:
		return true
	default:
		return false
	}
}

// terminate runs the best-effort shutdown sequence: shutdown request, exit
// notification, stdin close, terminate, then kill if the process is still
// around after grace. Write errors are ignored.
func (c *connection) terminate(grace, killWait time.Duration) {
	c.markClosing()
	if c.hasExited() {
		return
	}

	_ = c.write(Request{JSONRPC: JSONRPCVersion, ID: c.allocateID(), Method: "shutdown", Params: struct{}{}})
	_ = c.write(Notification{JSONRPC: JSONRPCVersion, Method: "exit", Params: struct{}{}})
	_ = c.proc.Stdin().Close()
	_ = c.proc.Terminate()

	if waitClosed(c.exited, grace) {
		return
	}
	_ = c.proc.Kill()
	waitClosed(c.exited, killWait)
}

// waitClosed waits up to d for ch to be closed.
func waitClosed(ch <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
