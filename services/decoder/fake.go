// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decoder

import (
	"context"
	"fmt"
	"os"

	"github.com/AleutianAI/ddarchive/services/process"
)

// NewFakeRunner returns a MockRunner that answers the two commands the
// Decoder issues without a JVM.
//
// "java -version" succeeds. "java -jar <jar> decode -o <out> <src>" writes
// decode(src) to <out>; a decode error is reported as a failed command with
// the error text on stderr.
func NewFakeRunner(decode func(src string) ([]byte, error)) *process.MockRunner {
	return &process.MockRunner{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if len(args) == 1 && args[0] == "-version" {
				return nil, nil
			}
			if len(args) != 6 || args[0] != "-jar" || args[2] != "decode" || args[3] != "-o" {
				return nil, fmt.Errorf("unexpected command: %s %v", name, args)
			}
			out, src := args[4], args[5]
			data, err := decode(src)
			if err != nil {
				return nil, &process.CommandError{Name: name, Args: args, Stderr: []byte(err.Error()), Err: err}
			}
			return nil, os.WriteFile(out, data, 0644)
		},
	}
}

// NewPassthroughRunner returns a fake runner that treats every save file as
// already-decoded JSON and copies it verbatim.
func NewPassthroughRunner() *process.MockRunner {
	return NewFakeRunner(os.ReadFile)
}
