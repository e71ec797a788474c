// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/cmd/ddarchive/config"
	"github.com/AleutianAI/ddarchive/pkg/ux"
	"github.com/AleutianAI/ddarchive/services/tui"
)

func runGUI(cmd *cobra.Command, args []string) error {
	if !ux.IsInteractive() {
		return errors.New("gui needs an interactive terminal; use monitor instead")
	}

	d := deps
	d.quiet = true
	d.assumeClosed = d.assumeClosed || assumeClosed
	a, err := newApp(configPath, d)
	if err != nil {
		return err
	}
	defer a.Close()

	model := guiModel(cmd, a)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func guiModel(cmd *cobra.Command, a *app) tui.Model {
	// the model calls ProfileChanged itself
	return tui.New(cmd.Context(), a.engine, a.snaps, tui.Config{
		Profiles: func() []int { return config.DiscoverProfiles(a.cfg.SaveRoot) },
		SaveProfile: func(n int) error {
			a.cfg.Profile = n
			return a.saveConfig()
		},
		WithHotkey: true,
		HotkeyName: hotkeyName(a.cfg),
	})
}
