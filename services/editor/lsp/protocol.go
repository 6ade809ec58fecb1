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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// headerTerminator separates the header block from the JSON body.
var headerTerminator = []byte("\r\n\r\n")

// =============================================================================
// OUTGOING MESSAGE TYPES
// =============================================================================

// Request is an outgoing JSON-RPC request. It expects exactly one response.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the per-connection request identifier, starting at 1.
	ID int64 `json:"id"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// Notification is an outgoing JSON-RPC notification (no ID, no response).
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// Response is an outgoing answer to a server-initiated request.
//
// Result is always serialized, so a nil Result is sent as JSON null.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID echoes the server's request id exactly as it was received.
	ID json.RawMessage `json:"id"`

	// Result is the answer payload.
	Result interface{} `json:"result"`
}

// =============================================================================
// INCOMING MESSAGES
// =============================================================================

// MessageKind classifies a decoded incoming message.
type MessageKind int

const (
	// KindInvalid is anything that is not a JSON object with a usable shape.
	KindInvalid MessageKind = iota

	// KindResponse answers one of our requests.
	KindResponse

	// KindNotification is a server notification with no id.
	KindNotification

	// KindServerRequest is a server-initiated request that must be answered.
	KindServerRequest
)

// String returns a human-readable kind name.
func (k MessageKind) String() string {
	names := []string{"invalid", "response", "notification", "server_request"}
	if int(k) >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// IncomingMessage is the tagged form of a message read from the server.
//
// Fields that were missing or of the wrong JSON type are left at their
// zero values instead of failing the whole message.
type IncomingMessage struct {
	Kind   MessageKind
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *ResponseError
}

// NumericID returns the message id as an integer.
//
// Numbers and numeric strings are accepted. Anything else reports false.
func (m IncomingMessage) NumericID() (int64, bool) {
	return numericID(m.ID)
}

// ParseMessage classifies a raw JSON message.
//
// Description:
//
//	Classification runs in priority order: a non-null id together with a
//	"result" or "error" key is a response; a string "method" without an id
//	is a notification; a "method" with an id is a server request. Anything
//	else is KindInvalid.
//
// Inputs:
//
//	raw - One decoded JSON body
//
// Outputs:
//
//	IncomingMessage - The classified message
//	error - Non-nil (wrapping ErrParse) only if raw is not valid JSON
func ParseMessage(raw json.RawMessage) (IncomingMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		if json.Valid(raw) {
			// Valid JSON, just not an object.
			return IncomingMessage{Kind: KindInvalid}, nil
		}
		return IncomingMessage{Kind: KindInvalid}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	msg := IncomingMessage{}
	if id, ok := fields["id"]; ok && !isNull(id) {
		msg.ID = id
	}
	_, hasResult := fields["result"]
	errRaw, hasError := fields["error"]

	if msg.ID != nil && (hasResult || hasError) {
		msg.Kind = KindResponse
		if hasResult && !isNull(fields["result"]) {
			msg.Result = fields["result"]
		}
		if hasError {
			msg.Error = parseResponseError(errRaw)
		}
		return msg, nil
	}

	if methodRaw, ok := fields["method"]; ok {
		var method string
		if err := json.Unmarshal(methodRaw, &method); err == nil && method != "" {
			msg.Method = method
		}
	}
	if msg.Method == "" {
		return IncomingMessage{Kind: KindInvalid}, nil
	}
	if params, ok := fields["params"]; ok && !isNull(params) {
		msg.Params = params
	}

	if msg.ID == nil {
		msg.Kind = KindNotification
	} else {
		msg.Kind = KindServerRequest
	}
	return msg, nil
}

// parseResponseError reads an "error" member. Null means no error; a
// non-object value is kept as the message text.
func parseResponseError(raw json.RawMessage) *ResponseError {
	if isNull(raw) {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			respErr := &ResponseError{Code: CodeUnknownErrorCode}
			if code, ok := numericID(fields["code"]); ok {
				respErr.Code = int(code)
			}
			if m, ok := fields["message"]; ok {
				_ = json.Unmarshal(m, &respErr.Message)
			}
			if d, ok := fields["data"]; ok && !isNull(d) {
				var data interface{}
				if err := json.Unmarshal(d, &data); err == nil {
					respErr.Data = data
				}
			}
			return respErr
		}
	}
	return &ResponseError{Code: CodeUnknownErrorCode, Message: string(trimmed)}
}

// numericID converts a JSON number or numeric string to int64.
func numericID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if n, err := num.Int64(); err == nil {
			return n, true
		}
		if f, err := num.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// =============================================================================
// FRAMING CODEC
// =============================================================================

// Encode frames a payload as one LSP message.
//
// Description:
//
//	Produces an ASCII "Content-Length: <n>\r\n\r\n" header followed by the
//	compact UTF-8 JSON encoding of payload. HTML characters are not escaped
//	so the body matches what other LSP implementations emit.
//
// Inputs:
//
//	payload - Any JSON-serializable value
//
// Outputs:
//
//	[]byte - Header and body
//	error - Non-nil if payload cannot be marshaled
func Encode(payload interface{}) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	data := bytes.TrimSuffix(body.Bytes(), []byte("\n"))

	out := make([]byte, 0, len(data)+32)
	out = append(out, "Content-Length: "...)
	out = strconv.AppendInt(out, int64(len(data)), 10)
	out = append(out, headerTerminator...)
	out = append(out, data...)
	return out, nil
}

// Decoder incrementally decodes framed messages from a byte stream.
//
// Description:
//
//	Bytes are appended with Feed and messages are pulled with Next. The
//	decoder alternates between awaiting a header and awaiting a body of the
//	declared length, so headers and bodies may arrive split across any
//	number of reads.
//
// Thread Safety:
//
//	Not safe for concurrent use. The client owns one decoder per connection
//	and touches it only from its loop goroutine.
type Decoder struct {
	buf []byte

	// expected is the declared body length, or -1 while awaiting a header.
	expected int
}

// NewDecoder creates a decoder in the awaiting-header state.
func NewDecoder() *Decoder {
	return &Decoder{expected: -1}
}

// Feed appends raw bytes read from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops all buffered bytes and returns to the awaiting-header state.
func (d *Decoder) Reset() {
	d.buf = nil
	d.expected = -1
}

// Next returns the next complete message.
//
// Description:
//
//	Returns (nil, nil) when no complete message is buffered yet. When a body
//	of the declared length is not valid JSON it is consumed and an error
//	wrapping ErrParse is returned; the caller should keep calling Next to
//	continue with the following message.
//
// Outputs:
//
//	json.RawMessage - A copy of the message body, or nil
//	error - ErrParse for a malformed body
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		if d.expected < 0 {
			end := bytes.Index(d.buf, headerTerminator)
			if end < 0 {
				return nil, nil
			}
			header := string(d.buf[:end])
			d.consume(end + len(headerTerminator))

			length, ok := parseContentLength(header)
			if !ok {
				// Header without a usable length: discard it and rescan.
				continue
			}
			d.expected = length
		}

		if len(d.buf) < d.expected {
			return nil, nil
		}

		body := make([]byte, d.expected)
		copy(body, d.buf[:d.expected])
		d.consume(d.expected)
		d.expected = -1

		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: invalid JSON body (%d bytes)", ErrParse, len(body))
		}
		return body, nil
	}
}

func (d *Decoder) consume(n int) {
	remaining := len(d.buf) - n
	copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}

// parseContentLength finds the first Content-Length line (case-insensitive).
// The first matching line decides the outcome even when its value is invalid.
func parseContentLength(header string) (int, bool) {
	for _, line := range strings.Split(header, "\r\n") {
		if !strings.HasPrefix(strings.ToLower(line), "content-length:") {
			continue
		}
		value := strings.TrimSpace(line[len("content-length:"):])
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, false
		}
		if n < 0 {
			n = 0
		}
		return n, true
	}
	return 0, false
}

// DecodeOne decodes a single message from the front of buf.
//
// Description:
//
//	Stateless form of Decoder. When buf does not yet hold a complete message
//	the message is nil and rest is buf unchanged.
//
// Outputs:
//
//	json.RawMessage - The first message, or nil
//	[]byte - The unconsumed remainder
//	error - ErrParse when the first complete body is malformed
func DecodeOne(buf []byte) (json.RawMessage, []byte, error) {
	d := &Decoder{expected: -1, buf: append([]byte(nil), buf...)}
	msg, err := d.Next()
	if msg == nil && err == nil {
		return nil, buf, nil
	}
	return msg, d.buf, err
}
