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

package config

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// steamPathFromRegistry reads HKCU\Software\Valve\Steam\SteamPath.
func steamPathFromRegistry() string {
	key, err := registry.OpenKey(registry.CURRENT_USER, `Software\Valve\Steam`, registry.QUERY_VALUE)
	if err != nil {
		return ""
	}
	defer key.Close()

	value, _, err := key.GetStringValue("SteamPath")
	if err != nil || strings.TrimSpace(value) == "" {
		return ""
	}
	return filepath.FromSlash(value)
}
