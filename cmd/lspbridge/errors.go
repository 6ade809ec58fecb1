// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
)

// Exit statuses.
const (
	exitOK       = 0
	exitFindings = 1
	exitFailure  = 2
)

var (
	errServerLost = errors.New("language server stopped before answering")
	errNoResult   = errors.New("no result")
)

// ExitError carries a specific exit status out of a command.
//
// # Description
//
// Commands return an ExitError when the outcome is not a plain failure,
// for example "ran fine, found error diagnostics". Err may be nil, in which
// case nothing is printed and only the status is used.
//
// # Example
//
//	if counts.Errors > 0 {
//	    return &ExitError{Code: exitFindings}
//	}
type ExitError struct {
	// Code is the process exit status.
	Code int

	// Err is printed when non-nil.
	Err error
}

// Error implements error.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// findings returns an ExitError with exitFindings and a message.
func findings(format string, args ...interface{}) *ExitError {
	return &ExitError{Code: exitFindings, Err: fmt.Errorf(format, args...)}
}

// reportError prints err and maps it to an exit status.
func (a *app) reportError(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			a.out().Error(exitErr.Err.Error())
		}
		return exitErr.Code
	}
	a.out().Error(err.Error())
	return exitFailure
}
