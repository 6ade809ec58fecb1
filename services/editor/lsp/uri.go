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
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"go.lsp.dev/uri"
)

// PathToURI converts a file path to a file:// URI.
//
// Description:
//
//	Relative paths are made absolute against the working directory. Windows
//	UNC paths (\\server\share\x) become file://server/share/x; everything
//	else, including drive-letter paths, is encoded by go.lsp.dev/uri.
func PathToURI(path string) string {
	if runtime.GOOS == "windows" && strings.HasPrefix(path, `\\`) {
		return uncToURI(path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return string(uri.File(path))
}

func uncToURI(path string) string {
	rest := strings.TrimLeft(filepath.ToSlash(path), "/")
	host, tail, _ := strings.Cut(rest, "/")
	u := &url.URL{Scheme: "file", Host: host, Path: "/" + tail}
	return u.String()
}

// URIToPath converts a file:// URI back to an OS path.
//
// Description:
//
//	Percent-escapes are decoded. A host other than "localhost" denotes a UNC
//	share and is kept as //host/... (\\host\... on Windows). On Windows the
//	leading slash before a drive letter is dropped. Non-file URIs report
//	false.
//
// Outputs:
//
//	string - The path
//	bool - False if the URI is not a usable file URI
func URIToPath(raw string) (string, bool) {
	return uriToPath(raw, runtime.GOOS)
}

func uriToPath(raw, goos string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "file") {
		return "", false
	}

	p := u.Path
	if u.Host != "" && !strings.EqualFold(u.Host, "localhost") {
		p = "//" + u.Host + p
	}
	if p == "" {
		return "", false
	}

	if goos != "windows" {
		if strings.HasPrefix(p, "//") {
			return p, true
		}
		return filepath.Clean(p), true
	}

	if hasDriveLetter(p) {
		p = p[1:]
	}
	p = strings.ReplaceAll(p, "/", `\`)
	return p, true
}

// hasDriveLetter reports whether p looks like /C:/... .
func hasDriveLetter(p string) bool {
	if len(p) < 3 || p[0] != '/' || p[2] != ':' {
		return false
	}
	c := p[1]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// NormalizePath returns the comparison key for a path: absolute, cleaned,
// and case-folded on case-insensitive platforms.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
	}
	return path
}

// samePath reports whether two paths refer to the same normalized location.
func samePath(a, b string) bool {
	return NormalizePath(a) == NormalizePath(b)
}
