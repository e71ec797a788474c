// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package monitor

import (
	"context"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/AleutianAI/ddarchive/pkg/logging"
)

const (
	wmHotkey = 0x0312
	wmQuit   = 0x0012
	hotkeyID = 1
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	procRegisterHotKey     = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32.NewProc("UnregisterHotKey")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
)

type point struct {
	x, y int32
}

type winMsg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// systemHotkey registers a thread-level hotkey with RegisterHotKey.
type systemHotkey struct {
	name   string
	vk     uint32
	logger *logging.Logger
}

// NewSystemHotkey returns a Hotkey backed by the Win32 RegisterHotKey API.
func NewSystemHotkey(name string, logger *logging.Logger) (Hotkey, error) {
	vk, err := ParseFunctionKey(name)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &systemHotkey{name: name, vk: vk, logger: logger}, nil
}

// Listen pumps the thread's message queue until ctx is cancelled.
//
// Hotkey messages are delivered to the registering thread, so the goroutine
// stays locked to its OS thread. Cancellation posts WM_QUIT to that thread.
func (h *systemHotkey) Listen(ctx context.Context, ready chan<- bool, onPress func()) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	threadID := windows.GetCurrentThreadId()
	r, _, callErr := procRegisterHotKey.Call(0, hotkeyID, 0, uintptr(h.vk))
	if r == 0 {
		h.logger.Error("failed to register global hotkey", "key", h.name, "error", callErr)
		ready <- false
		<-ctx.Done()
		return nil
	}
	h.logger.Info("global hotkey registered", "key", h.name)
	ready <- true

	defer func() {
		procUnregisterHotKey.Call(0, hotkeyID)
		h.logger.Info("global hotkey unregistered", "key", h.name)
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
		case <-done:
		}
	}()

	var m winMsg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 is WM_QUIT, -1 is an error
		if int32(r) <= 0 {
			return nil
		}
		if m.message == wmHotkey {
			onPress()
		}
	}
}
