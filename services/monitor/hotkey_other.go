// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !windows

package monitor

import (
	"context"

	"github.com/AleutianAI/ddarchive/pkg/logging"
)

type unsupportedHotkey struct {
	name   string
	logger *logging.Logger
}

// NewSystemHotkey returns a Hotkey that never registers; global hotkeys are
// only available on Windows.
func NewSystemHotkey(name string, logger *logging.Logger) (Hotkey, error) {
	if _, err := ParseFunctionKey(name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &unsupportedHotkey{name: name, logger: logger}, nil
}

func (h *unsupportedHotkey) Listen(ctx context.Context, ready chan<- bool, _ func()) error {
	h.logger.Warn("global hotkeys are not supported on this platform", "key", h.name)
	ready <- false
	<-ctx.Done()
	return nil
}
