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

// =============================================================================
// POSITION & RANGE TYPES
// =============================================================================

// Position is a 0-based line and UTF-16 character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Less reports whether p sorts before other.
func (p Position) Less(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// Range is a start/end pair of positions in a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// =============================================================================
// DOCUMENT IDENTIFIERS
// =============================================================================

// TextDocumentIdentifier identifies a text document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem is a document with its full content, sent on open.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// VersionedTextDocumentIdentifier identifies a specific document version.
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

// =============================================================================
// REQUEST & NOTIFICATION PARAMS
// =============================================================================

// TextDocumentPositionParams identifies a position in a text document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// CompletionTriggerInvoked means completion was requested explicitly.
const CompletionTriggerInvoked = 1

// CompletionContext describes how completion was triggered.
type CompletionContext struct {
	TriggerKind int `json:"triggerKind"`
}

// CompletionParams contains textDocument/completion parameters.
type CompletionParams struct {
	TextDocumentPositionParams
	Context CompletionContext `json:"context"`
}

// RenameParams contains textDocument/rename parameters.
type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// DidOpenTextDocumentParams contains params for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams contains params for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent carries the full new text. Range-based
// changes are never sent.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidCloseTextDocumentParams contains params for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// TextEdit is a single replacement in pre-edit document coordinates.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// ApplyWorkspaceEditResult answers workspace/applyEdit.
type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// =============================================================================
// INITIALIZE TYPES
// =============================================================================

// InitializeParams contains initialization parameters.
type InitializeParams struct {
	ProcessID        int                `json:"processId"`
	ClientInfo       *ClientInfo        `json:"clientInfo,omitempty"`
	RootURI          string             `json:"rootUri"`
	Capabilities     ClientCapabilities `json:"capabilities"`
	WorkspaceFolders []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// ClientInfo names the client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

// WorkspaceClientCapabilities describes workspace capabilities.
type WorkspaceClientCapabilities struct {
	WorkspaceEdit *WorkspaceEditClientCapabilities `json:"workspaceEdit,omitempty"`
}

// WorkspaceEditClientCapabilities describes workspace edit capabilities.
type WorkspaceEditClientCapabilities struct {
	DocumentChanges bool `json:"documentChanges"`
}

// TextDocumentClientCapabilities describes text document capabilities.
type TextDocumentClientCapabilities struct {
	Completion         *CompletionClientCapabilities         `json:"completion,omitempty"`
	Definition         *DefinitionClientCapabilities         `json:"definition,omitempty"`
	Rename             *RenameClientCapabilities             `json:"rename,omitempty"`
	PublishDiagnostics *PublishDiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
	Synchronization    *SynchronizationClientCapabilities    `json:"synchronization,omitempty"`
}

// CompletionClientCapabilities describes completion support.
type CompletionClientCapabilities struct {
	CompletionItem CompletionItemClientCapabilities `json:"completionItem"`
}

// CompletionItemClientCapabilities describes completion item support.
type CompletionItemClientCapabilities struct {
	SnippetSupport bool `json:"snippetSupport"`
}

// DefinitionClientCapabilities describes go-to-definition support.
type DefinitionClientCapabilities struct {
	LinkSupport bool `json:"linkSupport,omitempty"`
}

// RenameClientCapabilities describes rename support.
type RenameClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

// PublishDiagnosticsClientCapabilities describes diagnostics support.
type PublishDiagnosticsClientCapabilities struct {
	RelatedInformation bool `json:"relatedInformation"`
}

// SynchronizationClientCapabilities describes document sync support.
type SynchronizationClientCapabilities struct {
	DidSave bool `json:"didSave"`
}

// defaultClientCapabilities is the advertisement sent with initialize.
func defaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: WorkspaceClientCapabilities{
			WorkspaceEdit: &WorkspaceEditClientCapabilities{DocumentChanges: true},
		},
		TextDocument: TextDocumentClientCapabilities{
			Completion: &CompletionClientCapabilities{
				CompletionItem: CompletionItemClientCapabilities{SnippetSupport: true},
			},
			Definition:         &DefinitionClientCapabilities{},
			Rename:             &RenameClientCapabilities{DynamicRegistration: false},
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{RelatedInformation: true},
			Synchronization:    &SynchronizationClientCapabilities{DidSave: true},
		},
	}
}

// =============================================================================
// SERVER CAPABILITIES
// =============================================================================

// ServerCapabilities is the capabilities object from the initialize result,
// kept as a generic map because servers vary widely in its shape.
type ServerCapabilities map[string]interface{}

// Has reports whether a provider key is present and not false or null.
func (c ServerCapabilities) Has(name string) bool {
	v, ok := c[name]
	if !ok || v == nil {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

// HasCompletionProvider returns true if textDocument/completion is supported.
func (c ServerCapabilities) HasCompletionProvider() bool {
	return c.Has("completionProvider")
}

// HasDefinitionProvider returns true if textDocument/definition is supported.
func (c ServerCapabilities) HasDefinitionProvider() bool {
	return c.Has("definitionProvider")
}

// HasRenameProvider returns true if textDocument/rename is supported.
func (c ServerCapabilities) HasRenameProvider() bool {
	return c.Has("renameProvider")
}
