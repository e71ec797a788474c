// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process wraps the two kinds of OS process interaction ddarchive needs:
running external commands (java for the save decoder) and checking whether the
game executable is running.

All exec.Command calls go through Runner so tests can substitute MockRunner
instead of launching real processes.
*/
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Runner executes external commands.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Runner interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Description
	//
	// Waits for the command to finish. When the command exits non-zero or
	// cannot be started, the returned error is a *CommandError carrying the
	// captured stdout and stderr.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Captured stdout
	//   - error: *CommandError on failure
	//
	// # Examples
	//
	//   out, err := r.Run(ctx, "java", "-jar", jar, "decode", "-o", dst, src)
	//   if err != nil {
	//       return fmt.Errorf("decode: %w", err)
	//   }
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError describes a failed command run.
type CommandError struct {
	Name   string
	Args   []string
	Stdout []byte
	Stderr []byte
	Err    error
}

// Error includes stderr when present.
func (e *CommandError) Error() string {
	if msg := strings.TrimSpace(string(e.Stderr)); msg != "" {
		return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, msg)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Output returns trimmed stderr, or stdout when stderr is empty.
func (e *CommandError) Output() string {
	if msg := strings.TrimSpace(string(e.Stderr)); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(e.Stdout))
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// ExecRunner implements Runner using os/exec.
type ExecRunner struct {
	// configure is applied to every command before it starts, e.g. to hide
	// the console window on Windows.
	configure func(*exec.Cmd)
}

// NewExecRunner creates a Runner that executes real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{configure: hideWindow}
}

// Run executes a command synchronously and returns its output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.configure != nil {
		r.configure(cmd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{
			Name:   name,
			Args:   args,
			Stdout: stdout.Bytes(),
			Stderr: stderr.Bytes(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockRunner is a test double for Runner.
//
// If RunFunc is nil and Run is called, it panics.
//
// # Examples
//
//	mock := &MockRunner{
//	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
//	        if name == "java" && args[0] == "-version" {
//	            return nil, nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", name)
//	    },
//	}
type MockRunner struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// Calls records all method invocations for verification
	Calls []Call

	mu sync.Mutex
}

// Call records a single Run invocation.
type Call struct {
	Name string
	Args []string
}

// Run delegates to RunFunc and records the call.
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Name: name, Args: args})
	fn := m.RunFunc
	m.mu.Unlock()

	if fn == nil {
		panic("MockRunner.RunFunc not set")
	}
	return fn(ctx, name, args...)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockRunner) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Reset clears all recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Compile-time interface compliance check.
var (
	_ Runner = (*ExecRunner)(nil)
	_ Runner = (*MockRunner)(nil)
)
