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
	"strconv"
)

// DiagnosticSeverity ranks a diagnostic.
type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// String returns the lowercase severity name.
func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is one problem reported by the server.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`

	// Source and Code are empty when the server omits them. Numeric codes
	// are kept in decimal form.
	Source string `json:"source,omitempty"`
	Code   string `json:"code,omitempty"`
}

// parsePublishDiagnostics reads textDocument/publishDiagnostics params.
// Entries without a range object are skipped; a missing severity means
// warning.
func parsePublishDiagnostics(params json.RawMessage) (string, []Diagnostic, bool) {
	var shape struct {
		URI         interface{}       `json:"uri"`
		Diagnostics []json.RawMessage `json:"diagnostics"`
	}
	if len(params) == 0 || json.Unmarshal(params, &shape) != nil {
		return "", nil, false
	}
	uri, ok := shape.URI.(string)
	if !ok || uri == "" {
		return "", nil, false
	}

	diagnostics := make([]Diagnostic, 0, len(shape.Diagnostics))
	for _, raw := range shape.Diagnostics {
		if d, ok := parseDiagnostic(raw); ok {
			diagnostics = append(diagnostics, d)
		}
	}
	return uri, diagnostics, true
}

func parseDiagnostic(raw json.RawMessage) (Diagnostic, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return Diagnostic{}, false
	}
	rng, ok := parseRange(fields["range"])
	if !ok {
		return Diagnostic{}, false
	}

	d := Diagnostic{Range: rng, Severity: SeverityWarning}
	if n, ok := numericID(fields["severity"]); ok {
		d.Severity = DiagnosticSeverity(n)
	}
	_ = json.Unmarshal(fields["message"], &d.Message)
	_ = json.Unmarshal(fields["source"], &d.Source)

	if code, ok := fields["code"]; ok && !isNull(code) {
		var s string
		if json.Unmarshal(code, &s) == nil {
			d.Code = s
		} else if n, ok := numericID(code); ok {
			d.Code = strconv.FormatInt(n, 10)
		}
	}
	return d, true
}

// parseRange reads a range object. Missing coordinates default to 0 and a
// missing end defaults to the start.
func parseRange(raw json.RawMessage) (Range, bool) {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return Range{}, false
	}
	start, ok := parsePosition(fields["start"])
	if !ok {
		return Range{}, false
	}
	end, ok := parsePosition(fields["end"])
	if !ok {
		end = start
	}
	return Range{Start: start, End: end}, true
}

func parsePosition(raw json.RawMessage) (Position, bool) {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return Position{}, false
	}
	var p Position
	if n, ok := numericID(fields["line"]); ok {
		p.Line = int(n)
	}
	if n, ok := numericID(fields["character"]); ok {
		p.Character = int(n)
	}
	return p, true
}

// Diagnostics returns the most recent diagnostics published for path.
// Server URIs are matched by the path they resolve to, so differences in
// percent-encoding do not matter.
func (c *Client) Diagnostics(path string) []Diagnostic {
	var out []Diagnostic
	target := NormalizePath(path)
	_ = c.do(func() {
		for uri, diagnostics := range c.diagnostics {
			if p, ok := URIToPath(uri); ok && NormalizePath(p) == target {
				out = append(out, diagnostics...)
				return
			}
		}
	})
	return out
}
