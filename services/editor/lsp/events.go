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
	"sync"
)

// ResponseHandler receives the outcome of one request. Exactly one of
// result and err is meaningful: err is nil on success, and result is nil
// on failure or when the server answered null.
type ResponseHandler func(result json.RawMessage, err *ResponseError)

// Observer receives client events.
//
// All methods are called in order on a single delivery goroutine, never on
// the goroutine that owns client state, so implementations may call back
// into the Client.
type Observer interface {
	// ReadyChanged reports a readiness transition and a short status text.
	ReadyChanged(ready bool, message string)

	// DiagnosticsPublished reports the full current diagnostic set for uri.
	DiagnosticsPublished(uri string, diagnostics []Diagnostic)

	// LogMessage reports human-readable text from the client or server.
	LogMessage(text string)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields ignore
// their event.
type ObserverFuncs struct {
	OnReadyChanged         func(ready bool, message string)
	OnDiagnosticsPublished func(uri string, diagnostics []Diagnostic)
	OnLogMessage           func(text string)
}

// ReadyChanged implements Observer.
func (o ObserverFuncs) ReadyChanged(ready bool, message string) {
	if o.OnReadyChanged != nil {
		o.OnReadyChanged(ready, message)
	}
}

// DiagnosticsPublished implements Observer.
func (o ObserverFuncs) DiagnosticsPublished(uri string, diagnostics []Diagnostic) {
	if o.OnDiagnosticsPublished != nil {
		o.OnDiagnosticsPublished(uri, diagnostics)
	}
}

// LogMessage implements Observer.
func (o ObserverFuncs) LogMessage(text string) {
	if o.OnLogMessage != nil {
		o.OnLogMessage(text)
	}
}

// MultiObserver forwards every event to each non-nil observer in order.
type MultiObserver []Observer

// ReadyChanged implements Observer.
func (m MultiObserver) ReadyChanged(ready bool, message string) {
	for _, o := range m {
		if o != nil {
			o.ReadyChanged(ready, message)
		}
	}
}

// DiagnosticsPublished implements Observer.
func (m MultiObserver) DiagnosticsPublished(uri string, diagnostics []Diagnostic) {
	for _, o := range m {
		if o != nil {
			o.DiagnosticsPublished(uri, diagnostics)
		}
	}
}

// LogMessage implements Observer.
func (m MultiObserver) LogMessage(text string) {
	for _, o := range m {
		if o != nil {
			o.LogMessage(text)
		}
	}
}

// =============================================================================
// DELIVERY QUEUE
// =============================================================================

// deliveryQueue runs callbacks one at a time, in submission order, on its
// own goroutine. Pushing never blocks.
type deliveryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	done   chan struct{}
}

func newDeliveryQueue() *deliveryQueue {
	q := &deliveryQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *deliveryQueue) push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
}

// close stops accepting work. Already queued callbacks still run.
func (q *deliveryQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *deliveryQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		fn()
	}
}
