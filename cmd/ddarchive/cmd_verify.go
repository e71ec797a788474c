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
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/pkg/ux"
)

// verifyReport is the outcome of the environment checks.
type verifyReport struct {
	Failures []string
	InRaid   *bool
	Cloud    *bool
}

// OK reports whether every check passed.
func (r verifyReport) OK() bool {
	return len(r.Failures) == 0
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report := verify(cmd.Context(), a)
	if !report.OK() {
		return &ExitError{Code: 1, Reason: fmt.Sprintf("%d checks failed", len(report.Failures))}
	}
	return nil
}

// verify prints the resolved paths and checks them.
//
// # Description
//
// Fails when save_root is unset or missing, the profile directory or the
// jar is missing, or the decoder cannot start. When the profile and jar
// exist, the in-raid and Steam Cloud flags are decoded and printed; a
// decode failure also fails verification.
func verify(ctx context.Context, a *app) verifyReport {
	var report verifyReport
	fail := func(msg string) {
		report.Failures = append(report.Failures, msg)
		ux.Error(msg)
	}

	cfg := a.cfg
	ux.Title("Verify")
	saveRoot := cfg.SaveRoot
	if saveRoot == "" {
		saveRoot = "(not set)"
	}
	ux.KeyValue("save_root", saveRoot)
	ux.KeyValue("profile", strconv.Itoa(cfg.Profile))
	ux.KeyValue("profile_dir", cfg.ProfileDir())
	ux.KeyValue("jar_path", cfg.JarFile())
	ux.KeyValue("snapshots_root", cfg.SnapshotsRoot())

	if cfg.SaveRoot == "" {
		fail("save_root is not configured")
	} else if !exists(cfg.SaveRoot) {
		fail("save_root does not exist")
	}
	profileOK := exists(cfg.ProfileDir())
	if !profileOK {
		fail("profile directory does not exist")
	}
	jarOK := exists(cfg.JarFile())
	if !jarOK {
		fail("DDSaveEditor.jar does not exist")
	}

	if err := a.decoder.EnsureReady(ctx); err != nil {
		fail(fmt.Sprintf("decoder not ready: %v", err))
	} else {
		ux.Success("Java + jar: OK")
	}

	if profileOK && jarOK {
		inraid, err := a.decoder.ReadInRaid(ctx, cfg.ProfileDir())
		if err != nil {
			fail(fmt.Sprintf("read inraid failed: %v", err))
		} else {
			report.InRaid = inraid
			ux.KeyValue("inraid", formatFlag(inraid))
		}
		if cfg.SaveRoot != "" {
			cloud, err := a.decoder.ReadSteamCloudEnabled(ctx, cfg.SaveRoot)
			if err != nil {
				fail(fmt.Sprintf("read steam cloud failed: %v", err))
			} else {
				report.Cloud = cloud
				ux.KeyValue("steam_cloud_enabled", formatFlag(cloud))
			}
		}
	}

	if report.OK() {
		ux.Success("all checks passed")
	}
	return report
}

func formatFlag(v *bool) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatBool(*v)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
