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

import "encoding/json"

// RequestCompletion asks for completions at a position.
//
// Description:
//
//	Sends textDocument/completion with an invoked trigger. Negative line
//	and character values are clamped to 0. If the connection is not ready
//	the handler is called before RequestCompletion returns, with a
//	*ResponseError whose Message is NotReadyMessage.
//
// Inputs:
//
//	path - The document's file path
//	line - 0-based line
//	character - 0-based UTF-16 character offset
//	handler - Receives the raw result; see ParseCompletionItems
//
// Outputs:
//
//	bool - True if the request was sent
func (c *Client) RequestCompletion(path string, line, character int, handler ResponseHandler) bool {
	params := CompletionParams{
		TextDocumentPositionParams: positionParams(path, line, character),
		Context:                    CompletionContext{TriggerKind: CompletionTriggerInvoked},
	}
	return c.request("textDocument/completion", params, handler)
}

// RequestDefinition asks for the definition of the symbol at a position.
// Readiness and clamping behave as in RequestCompletion; see ParseLocation
// for the result.
func (c *Client) RequestDefinition(path string, line, character int, handler ResponseHandler) bool {
	return c.request("textDocument/definition", positionParams(path, line, character), handler)
}

// RequestRename asks for a workspace edit renaming the symbol at a
// position to newName. Readiness and clamping behave as in
// RequestCompletion; see CollectWorkspaceEdit for the result.
func (c *Client) RequestRename(path string, line, character int, newName string, handler ResponseHandler) bool {
	params := RenameParams{
		TextDocumentPositionParams: positionParams(path, line, character),
		NewName:                    newName,
	}
	return c.request("textDocument/rename", params, handler)
}

func positionParams(path string, line, character int) TextDocumentPositionParams {
	if line < 0 {
		line = 0
	}
	if character < 0 {
		character = 0
	}
	return TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: PathToURI(path)},
		Position:     Position{Line: line, Character: character},
	}
}

// request sends a user request when ready, otherwise answers the handler
// synchronously with the not-ready error.
func (c *Client) request(method string, params interface{}, handler ResponseHandler) bool {
	sent := false
	err := c.do(func() {
		conn := c.conn
		if conn == nil || !conn.ready {
			return
		}
		c.sendRequestLocked(conn, method, params, func(result json.RawMessage, respErr *ResponseError) {
			if handler != nil {
				c.deliver.push(func() { handler(result, respErr) })
			}
		})
		sent = true
	})
	if err != nil || !sent {
		if handler != nil {
			handler(nil, notReadyError())
		}
		return false
	}
	return true
}
