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
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/cmd/ddarchive/config"
	"github.com/AleutianAI/ddarchive/pkg/ux"
	"github.com/AleutianAI/ddarchive/services/monitor"
)

// =============================================================================
// show
// =============================================================================

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(configPath, deps)
	if err != nil {
		return err
	}
	showConfig(cfg, path)
	return nil
}

func showConfig(cfg *config.AppConfig, path string) {
	ux.Title("Configuration")
	ux.KeyValue("file", path)
	ux.KeyValue("save_root", orNotSet(cfg.SaveRoot))
	ux.KeyValue("profile", strconv.Itoa(cfg.Profile))
	ux.KeyValue("profile_dir", cfg.ProfileDir())
	ux.KeyValue("jar_path", cfg.JarFile())
	ux.KeyValue("java_bin", cfg.JavaBin)
	ux.KeyValue("game_process", cfg.GameProcess)
	ux.KeyValue("hotkey", hotkeyName(cfg))
	ux.KeyValue("state_poll", cfg.StatePollInterval().String())
	ux.KeyValue("inraid_poll", cfg.InRaidStatePollInterval().String())
	ux.KeyValue("runtime_poll", cfg.RuntimeSnapshotInterval().String())
	ux.KeyValue("quiet_window", cfg.QuietWindow().String())
	ux.KeyValue("retention", strconv.Itoa(cfg.RetentionPerBucket))
	ux.KeyValue("integrity_retry", strconv.Itoa(cfg.IntegrityRetry))
	ux.KeyValue("snapshots_root", cfg.SnapshotsRoot())
	ux.KeyValue("logs_root", cfg.LogsRoot())
	if cfg.Export.GCSBucket != "" {
		ux.KeyValue("export.gcs", "gs://"+cfg.Export.GCSBucket)
	}
	if cfg.Export.S3Bucket != "" {
		ux.KeyValue("export.s3", "s3://"+cfg.Export.S3Bucket)
		ux.KeyValue("export.s3_key", maskSecret(cfg.Export.S3AccessKeyID))
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// maskSecret keeps the first four characters.
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// =============================================================================
// detect
// =============================================================================

func runConfigDetect(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(configPath, deps)
	if err != nil {
		return err
	}
	detector := deps.detector
	if detector == nil {
		detector = config.NewDetector()
	}
	_, err = detectSaveRoots(cfg, path, detector, detectApply)
	return err
}

// detectSaveRoots prints ranked candidates and, with apply, saves the best.
func detectSaveRoots(cfg *config.AppConfig, path string, detector *config.Detector, apply bool) ([]string, error) {
	candidates := detector.Candidates()
	if len(candidates) == 0 {
		ux.Warning("no Darkest Dungeon save roots found; use config set-save-root <path>")
		return nil, nil
	}
	for i, c := range candidates {
		profiles := config.DiscoverProfiles(c)
		ux.Info(fmt.Sprintf("%d. %s (%d profiles)", i+1, c, len(profiles)))
	}
	if !apply {
		return candidates, nil
	}
	cfg.SaveRoot = candidates[0]
	config.SyncProfileToExisting(cfg)
	if err := config.Save(cfg, path); err != nil {
		return candidates, err
	}
	ux.Success("save_root set to " + cfg.SaveRoot)
	return candidates, nil
}

// =============================================================================
// set-save-root
// =============================================================================

func runConfigSetSaveRoot(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(configPath, deps)
	if err != nil {
		return err
	}
	return setSaveRoot(cfg, path, args[0])
}

func setSaveRoot(cfg *config.AppConfig, path, selected string) error {
	root, err := config.SetSaveRoot(cfg, selected)
	if err != nil {
		return err
	}
	if !config.SaveRootLooksValid(root) {
		ux.Warning("no profile_N folder or steam_init.json found in " + root)
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	ux.Success("save_root set to " + root)
	ux.KeyValue("profile", strconv.Itoa(cfg.Profile))
	return nil
}

// =============================================================================
// settings
// =============================================================================

func runSettings(cmd *cobra.Command, args []string) error {
	if !ux.IsInteractive() {
		return errors.New("settings needs an interactive terminal; edit config.yaml or use config set-save-root")
	}
	cfg, path, err := loadConfig(configPath, deps)
	if err != nil {
		return err
	}

	form := newSettingsForm(cfg)
	if err := form.form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			ux.Info("settings unchanged")
			return nil
		}
		return err
	}
	if err := form.apply(cfg); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	ux.Success("settings saved to " + path)
	return nil
}

// settingsForm binds huh fields to string copies of the editable settings.
type settingsForm struct {
	form *huh.Form

	saveRoot   string
	profile    int
	hotkey     string
	statePoll  string
	inraidPoll string
	runtime    string
	retention  string
}

func newSettingsForm(cfg *config.AppConfig) *settingsForm {
	s := &settingsForm{
		saveRoot:   cfg.SaveRoot,
		profile:    cfg.Profile,
		hotkey:     hotkeyName(cfg),
		statePoll:  strconv.Itoa(cfg.StatePollIntervalMs),
		inraidPoll: strconv.Itoa(cfg.InRaidStatePollIntervalMs),
		runtime:    strconv.Itoa(cfg.RuntimeSnapshotIntervalMs),
		retention:  strconv.Itoa(cfg.RetentionPerBucket),
	}

	profileOpts := []huh.Option[int]{huh.NewOption(config.ProfileDirName(cfg.Profile), cfg.Profile)}
	for _, p := range config.DiscoverProfiles(cfg.SaveRoot) {
		if p != cfg.Profile {
			profileOpts = append(profileOpts, huh.NewOption(config.ProfileDirName(p), p))
		}
	}

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Save root").
				Description("Steam remote folder, or a profile, 262060, Steam id or userdata folder").
				Value(&s.saveRoot),
			huh.NewSelect[int]().
				Title("Profile").
				Options(profileOpts...).
				Value(&s.profile),
			huh.NewInput().
				Title("Hotkey").
				Value(&s.hotkey).
				Validate(validateHotkey),
		),
		huh.NewGroup(
			huh.NewInput().Title("State poll interval (ms)").Value(&s.statePoll).Validate(positiveInt),
			huh.NewInput().Title("In-raid poll interval (ms)").Value(&s.inraidPoll).Validate(positiveInt),
			huh.NewInput().Title("Runtime snapshot interval (ms)").Value(&s.runtime).Validate(positiveInt),
			huh.NewInput().Title("Snapshots kept per bucket").Value(&s.retention).Validate(positiveInt),
		),
	)
	return s
}

// apply copies the form values into cfg and validates the result.
func (s *settingsForm) apply(cfg *config.AppConfig) error {
	next := *cfg
	if strings.TrimSpace(s.saveRoot) != cfg.SaveRoot {
		if _, err := config.SetSaveRoot(&next, strings.TrimSpace(s.saveRoot)); err != nil {
			return err
		}
	} else {
		next.Profile = s.profile
	}
	next.Hotkey = strings.ToUpper(strings.TrimSpace(s.hotkey))
	next.StatePollIntervalMs = atoi(s.statePoll)
	next.InRaidStatePollIntervalMs = atoi(s.inraidPoll)
	next.RuntimeSnapshotIntervalMs = atoi(s.runtime)
	next.RetentionPerBucket = atoi(s.retention)

	if err := config.Validate(&next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("enter a whole number above 0")
	}
	return nil
}

func validateHotkey(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := monitor.ParseFunctionKey(s)
	return err
}
