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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserverFuncs_NilFields(t *testing.T) {
	var o ObserverFuncs
	assert.NotPanics(t, func() {
		o.ReadyChanged(true, "ready")
		o.DiagnosticsPublished("file:///a", nil)
		o.LogMessage("x")
	})
}

func TestMultiObserver(t *testing.T) {
	var got []string
	record := func(prefix string) Observer {
		return ObserverFuncs{
			OnReadyChanged: func(ready bool, message string) { got = append(got, prefix+" ready "+message) },
			OnDiagnosticsPublished: func(uri string, d []Diagnostic) {
				got = append(got, prefix+" diags "+uri)
			},
			OnLogMessage: func(text string) { got = append(got, prefix+" log "+text) },
		}
	}

	m := MultiObserver{record("a"), nil, record("b")}
	m.ReadyChanged(false, "stopped")
	m.DiagnosticsPublished("file:///x", nil)
	m.LogMessage("hello")

	assert.Equal(t, []string{
		"a ready stopped", "b ready stopped",
		"a diags file:///x", "b diags file:///x",
		"a log hello", "b log hello",
	}, got)
}

func TestDeliveryQueue_Order(t *testing.T) {
	q := newDeliveryQueue()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.push(func() { got = append(got, i) })
	}
	q.close()
	<-q.done

	assert.Len(t, got, 100)
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}

	q.push(func() { t.Error("callback ran after close") })
}
