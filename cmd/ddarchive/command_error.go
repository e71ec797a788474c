// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "fmt"

// ExitError ends the process with Code after the command has already
// reported its outcome.
//
// # Example
//
//	if failed > 0 {
//	    return &ExitError{Code: 1, Reason: "2 checks failed"}
//	}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Reason is kept for logs; it is not printed.
	Reason string
}

// Error returns "exit <code>: <reason>".
func (e *ExitError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return fmt.Sprintf("exit %d: %s", e.Code, e.Reason)
}
