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
	"log/slog"
	"strings"
	"time"
)

// ApplyEditFailureReason is sent when the server asks the client to apply a
// workspace edit on its own initiative. Edits are only applied from direct
// request results.
const ApplyEditFailureReason = "lspbridge applies workspace edits from direct request results only."

// =============================================================================
// OUTGOING
// =============================================================================

// sendRequestLocked allocates an id, registers handler (if any) and writes
// the request. The handler runs on the loop.
func (c *Client) sendRequestLocked(conn *connection, method string, params interface{}, handler func(json.RawMessage, *ResponseError)) int64 {
	id := conn.allocateID()
	if handler != nil {
		conn.pending[id] = pendingRequest{method: method, started: time.Now(), handler: handler}
	}
	recordRequest(context.Background(), method)
	if err := conn.write(Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		c.logger.Warn("request write failed",
			slog.String("connection_id", conn.id),
			slog.String("method", method),
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
	}
	return id
}

func (c *Client) sendNotificationLocked(conn *connection, method string, params interface{}) {
	if err := conn.write(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params}); err != nil {
		c.logger.Warn("notification write failed",
			slog.String("connection_id", conn.id),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	}
}

// sendResponseLocked answers a server request, echoing its id verbatim.
func (c *Client) sendResponseLocked(conn *connection, id json.RawMessage, result interface{}) {
	if err := conn.write(Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}); err != nil {
		c.logger.Warn("response write failed",
			slog.String("connection_id", conn.id),
			slog.String("id", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

// =============================================================================
// INCOMING
// =============================================================================

// handleMessageLocked routes one decoded message.
func (c *Client) handleMessageLocked(conn *connection, raw json.RawMessage) {
	msg, err := ParseMessage(raw)
	if err != nil {
		recordProtocolError(context.Background())
		c.logger.Warn("dropping unparseable message",
			slog.String("connection_id", conn.id),
			slog.String("error", err.Error()),
		)
		return
	}

	switch msg.Kind {
	case KindResponse:
		c.handleResponseLocked(conn, msg)
	case KindNotification:
		c.handleNotificationLocked(msg)
	case KindServerRequest:
		c.handleServerRequestLocked(conn, msg)
	default:
		c.logger.Debug("ignoring message without usable shape", slog.String("connection_id", conn.id))
	}
}

func (c *Client) handleResponseLocked(conn *connection, msg IncomingMessage) {
	id, ok := msg.NumericID()
	if !ok {
		c.logger.Debug("response with non-numeric id", slog.String("id", string(msg.ID)))
		return
	}
	req, ok := conn.pending[id]
	if !ok {
		c.logger.Debug("response for unknown request", slog.Int64("id", id))
		return
	}
	delete(conn.pending, id)
	recordResponse(context.Background(), req.method, time.Since(req.started), msg.Error != nil)

	if msg.Error != nil {
		req.handler(nil, msg.Error)
		return
	}
	req.handler(msg.Result, nil)
}

func (c *Client) handleNotificationLocked(msg IncomingMessage) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		uri, diagnostics, ok := parsePublishDiagnostics(msg.Params)
		if !ok {
			c.logger.Debug("malformed publishDiagnostics")
			return
		}
		c.diagnostics[uri] = diagnostics
		c.emitDiagnostics(uri, diagnostics)

	case "window/logMessage", "window/showMessage":
		var params struct {
			Message interface{} `json:"message"`
		}
		if len(msg.Params) == 0 || json.Unmarshal(msg.Params, &params) != nil {
			return
		}
		text, _ := params.Message.(string)
		if text = strings.TrimSpace(text); text != "" {
			c.emitLog(text)
		}

	default:
		c.logger.Debug("ignoring notification", slog.String("method", msg.Method))
	}
}

// handleServerRequestLocked answers every server-initiated request.
func (c *Client) handleServerRequestLocked(conn *connection, msg IncomingMessage) {
	var result interface{}

	switch msg.Method {
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		if len(msg.Params) > 0 {
			_ = json.Unmarshal(msg.Params, &params)
		}
		answers := make([]map[string]interface{}, len(params.Items))
		for i := range answers {
			answers[i] = map[string]interface{}{}
		}
		result = answers

	case "client/registerCapability", "client/unregisterCapability", "window/workDoneProgress/create":
		result = nil

	case "workspace/applyEdit":
		result = ApplyWorkspaceEditResult{Applied: false, FailureReason: ApplyEditFailureReason}

	default:
		c.logger.Debug("answering unknown server request with null", slog.String("method", msg.Method))
	}

	c.sendResponseLocked(conn, msg.ID, result)
}
