// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp is the editor side of the Language Server Protocol.
//
// A Client spawns one language server process over stdio, performs the
// initialize handshake, keeps open documents in sync with full-text
// notifications, correlates requests with their responses and answers
// every request the server sends. Results are parsed with
// ParseCompletionItems, ParseLocation and CollectWorkspaceEdit; the last is
// applied to buffers and files by an EditApplier.
//
// Messages use JSON-RPC 2.0 framed with a Content-Length header (see Encode
// and Decoder). Positions are line and UTF-16 character pairs (see OffsetOf
// and LineCharacterOf).
//
// Example:
//
//	client := lsp.NewClient(lsp.DefaultClientConfig(), nil, logger, observer)
//	defer client.Shutdown()
//
//	client.EnsureStarted("/path/to/project")
//	client.OpenOrChange("/path/to/project/main.py", text, "python")
//	client.RequestDefinition("/path/to/project/main.py", 10, 4, func(result json.RawMessage, err *lsp.ResponseError) {
//	    if loc, ok := lsp.ParseLocation(result); ok {
//	        // jump to loc
//	    }
//	})
package lsp
