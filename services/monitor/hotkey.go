// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Hotkey delivers global key presses.
type Hotkey interface {
	// Listen registers the key, sends the registration result on ready
	// exactly once, calls onPress for every press and returns after ctx is
	// cancelled.
	Listen(ctx context.Context, ready chan<- bool, onPress func()) error
}

// ParseFunctionKey maps "F1".."F12" to a Windows virtual-key code.
func ParseFunctionKey(name string) (uint32, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(upper, "F") {
		return 0, fmt.Errorf("unsupported hotkey %q", name)
	}
	n, err := strconv.Atoi(upper[1:])
	if err != nil || n < 1 || n > 12 {
		return 0, fmt.Errorf("unsupported hotkey %q", name)
	}
	const vkF1 = 0x70
	return uint32(vkF1 + n - 1), nil
}

// FuncHotkey adapts a function to Hotkey. Used by tests and front ends that
// capture keys themselves.
type FuncHotkey func(ctx context.Context, ready chan<- bool, onPress func()) error

// Listen calls f.
func (f FuncHotkey) Listen(ctx context.Context, ready chan<- bool, onPress func()) error {
	return f(ctx, ready, onPress)
}
