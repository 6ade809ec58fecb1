// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders lspbridge CLI output.
//
// Two modes exist. Rich output uses lipgloss colours and icons and is picked
// when stdout is a terminal. Plain output is stable, uncoloured, and uses the
// compiler-style "path:line:col: severity: message" layout so editors and
// scripts can parse it.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// lspbridge palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorInfo    = lipgloss.Color("#5DADE2")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6C8A94")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Info      lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Path      lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Info:      lipgloss.NewStyle().Foreground(ColorInfo),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Path:      lipgloss.NewStyle().Foreground(ColorTealPrimary).Underline(true),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconInfo    Icon = "ℹ"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconHint    Icon = "•"
	IconArrow   Icon = "→"
)

// Render returns the icon with its colour.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconInfo:
		return Styles.Info.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconHint:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Mode selects between styled and parseable output.
type Mode int

const (
	// ModePlain writes uncoloured, line-oriented text.
	ModePlain Mode = iota

	// ModeRich writes coloured text with icons.
	ModeRich
)

// DetectMode returns ModeRich when w is a terminal.
func DetectMode(w io.Writer) Mode {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

// Printer writes CLI results to out and status messages to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewPrinter creates a Printer whose mode follows out.
func NewPrinter(out, errOut io.Writer) *Printer {
	return NewPrinterMode(out, errOut, DetectMode(out))
}

// NewPrinterMode creates a Printer with an explicit mode.
func NewPrinterMode(out, errOut io.Writer, mode Mode) *Printer {
	return &Printer{out: out, errOut: errOut, mode: mode}
}

// Mode returns the output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// =============================================================================
// Status lines
// =============================================================================

// Success prints a success message.
func (p *Printer) Success(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.errOut, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.errOut, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Info prints a status message.
func (p *Printer) Info(text string) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.errOut, text)
		return
	}
	fmt.Fprintf(p.errOut, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Warning prints a warning.
func (p *Printer) Warning(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.errOut, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.errOut, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error.
func (p *Printer) Error(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.errOut, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.errOut, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// =============================================================================
// Results
// =============================================================================

// DiagnosticLine is one diagnostic ready for display. Line and Column are
// 1-based.
type DiagnosticLine struct {
	Path     string
	Line     int
	Column   int
	Severity string
	Message  string
	Source   string
	Code     string
}

// Diagnostic prints one diagnostic.
func (p *Printer) Diagnostic(d DiagnosticLine) {
	fmt.Fprintln(p.out, p.FormatDiagnostic(d))
}

// FormatDiagnostic renders one diagnostic without a trailing newline.
func (p *Printer) FormatDiagnostic(d DiagnosticLine) string {
	message := firstLine(d.Message)
	var tag string
	switch {
	case d.Source != "" && d.Code != "":
		tag = fmt.Sprintf("[%s %s]", d.Source, d.Code)
	case d.Source != "":
		tag = "[" + d.Source + "]"
	case d.Code != "":
		tag = "[" + d.Code + "]"
	}

	if p.mode == ModePlain {
		line := fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Severity, message)
		if tag != "" {
			line += " " + tag
		}
		return line
	}

	icon, style := severityStyle(d.Severity)
	line := fmt.Sprintf("%s %s %s %s",
		icon.Render(),
		Styles.Path.Render(fmt.Sprintf("%s:%d:%d", d.Path, d.Line, d.Column)),
		style.Render(d.Severity),
		message,
	)
	if tag != "" {
		line += " " + Styles.Muted.Render(tag)
	}
	return line
}

func severityStyle(severity string) (Icon, lipgloss.Style) {
	switch severity {
	case "error":
		return IconError, Styles.Error
	case "warning":
		return IconWarning, Styles.Warning
	case "information":
		return IconInfo, Styles.Info
	default:
		return IconHint, Styles.Muted
	}
}

// Location prints a path position, with the source line when known. Line
// and column are 1-based.
func (p *Printer) Location(path string, line, column int, source string) {
	fmt.Fprintln(p.out, p.FormatLocation(path, line, column, source))
}

// FormatLocation renders a location without a trailing newline.
func (p *Printer) FormatLocation(path string, line, column int, source string) string {
	source = strings.TrimSpace(source)
	pos := fmt.Sprintf("%s:%d:%d", path, line, column)
	if p.mode == ModePlain {
		if source == "" {
			return pos
		}
		return pos + ": " + source
	}
	out := fmt.Sprintf("%s %s", IconArrow.Render(), Styles.Path.Render(pos))
	if source != "" {
		out += "\n  " + Styles.Muted.Render(source)
	}
	return out
}

// Completion prints one completion entry.
func (p *Printer) Completion(label, detail, insert string) {
	fmt.Fprintln(p.out, p.FormatCompletion(label, detail, insert))
}

// FormatCompletion renders a completion entry. Plain mode is tab-separated:
// label, insertion text, detail.
func (p *Printer) FormatCompletion(label, detail, insert string) string {
	detail = firstLine(detail)
	if p.mode == ModePlain {
		return strings.Join([]string{label, insert, detail}, "\t")
	}
	out := Styles.Highlight.Render(label)
	if insert != "" && insert != label {
		out += " " + IconArrow.Render() + " " + insert
	}
	if detail != "" {
		out += "  " + Styles.Muted.Render(detail)
	}
	return out
}

// FileEdits prints how many edits a file received.
func (p *Printer) FileEdits(path string, edits int, applied bool) {
	verb := "would edit"
	if applied {
		verb = "edited"
	}
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "%s\t%d\t%s\n", path, edits, verb)
		return
	}
	icon := IconArrow
	if applied {
		icon = IconSuccess
	}
	fmt.Fprintf(p.out, "%s %s %s\n", icon.Render(), Styles.Path.Render(path), Styles.Muted.Render(fmt.Sprintf("(%s, %d %s)", verb, edits, plural(edits, "edit"))))
}

// FileFailed prints a file whose edits could not be applied.
func (p *Printer) FileFailed(path string, edits int, err error) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "%s\t%d\tfailed: %v\n", path, edits, err)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n", IconError.Render(), Styles.Path.Render(path), Styles.Error.Render(fmt.Sprintf("(failed, %d %s not applied: %v)", edits, plural(edits, "edit"), err)))
}

// DiagnosticSummary prints totals by severity.
func (p *Printer) DiagnosticSummary(files, errors, warnings, others int) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.errOut, "SUMMARY: files=%d errors=%d warnings=%d other=%d\n", files, errors, warnings, others)
		return
	}
	fmt.Fprintf(p.errOut, "\n%s %s  %s %s  %s %s  %s\n",
		Styles.Error.Render(fmt.Sprint(errors)), Styles.Muted.Render(plural(errors, "error")),
		Styles.Warning.Render(fmt.Sprint(warnings)), Styles.Muted.Render(plural(warnings, "warning")),
		Styles.Bold.Render(fmt.Sprint(others)), Styles.Muted.Render("other"),
		Styles.Muted.Render(fmt.Sprintf("in %d %s", files, plural(files, "file"))),
	)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[:i]) + " …"
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
