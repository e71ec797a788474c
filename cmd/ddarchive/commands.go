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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath       string
	personalityLevel string // UX personality level (full/minimal/machine)
	assumeClosed     bool

	// deps is replaced in tests.
	deps appDeps

	rootCmd = &cobra.Command{
		Use:   "ddarchive",
		Short: "Snapshot, verify and restore Darkest Dungeon saves",
		Long: `ddarchive keeps verified snapshots of a Darkest Dungeon profile.

While the game runs it keeps a rolling poll snapshot and promotes it to a
pre-raid anchor when a raid starts. F5 takes a runtime snapshot, and any
snapshot can be restored once the game is closed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Modes ---
	guiCmd = &cobra.Command{
		Use:   "gui",
		Short: "Open the interactive snapshot browser",
		Args:  cobra.NoArgs,
		RunE:  runGUI, // Defined in cmd_gui.go
	}
	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check the save root, profile, jar and decoder",
		Args:  cobra.NoArgs,
		RunE:  runVerify, // Defined in cmd_verify.go
	}
	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Run the background monitor until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runMonitor, // Defined in cmd_monitor.go
	}

	// --- Snapshots ---
	snapshotsCmd = &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"snap"},
		Short:   "List, take, restore and import snapshots",
	}
	snapshotsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshots of the active profile, newest first",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotsList, // Defined in cmd_snapshots.go
	}
	snapshotsSaveCmd = &cobra.Command{
		Use:   "save",
		Short: "Take a closed-game snapshot (the game must not be running)",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotsSave,
	}
	snapshotsRestoreCmd = &cobra.Command{
		Use:   "restore <snapshot_id>",
		Short: "Restore a snapshot over the active profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotsRestore,
	}
	snapshotsImportCmd = &cobra.Command{
		Use:   "import <archive.tar.lz4>",
		Short: "Import an exported snapshot archive into its bucket",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotsImport, // Defined in cmd_export.go
	}
	exportCmd = &cobra.Command{
		Use:   "export <snapshot_id>",
		Short: "Write a snapshot as .tar.lz4 and optionally upload it",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport, // Defined in cmd_export.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent captures, promotions and restores",
		Args:  cobra.NoArgs,
		RunE:  runHistory, // Defined in cmd_history.go
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect and change config.yaml",
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow, // Defined in cmd_config.go
	}
	configDetectCmd = &cobra.Command{
		Use:   "detect",
		Short: "List Steam save roots found on this machine",
		Args:  cobra.NoArgs,
		RunE:  runConfigDetect,
	}
	configSetSaveRootCmd = &cobra.Command{
		Use:   "set-save-root <path>",
		Short: "Set save_root from a remote, profile, 262060, Steam id or userdata directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigSetSaveRoot,
	}
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Edit the main settings interactively",
		Args:  cobra.NoArgs,
		RunE:  runSettings, // Defined in cmd_config.go
	}
)

var (
	listBucket   string
	listAll      bool
	restoreYes   bool
	metricsAddr  string
	historyLimit int
	exportOut    string
	exportGCS    bool
	exportS3     bool
	detectApply  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: config.yaml next to the executable)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "", "output style: full, minimal or machine")
	rootCmd.PersistentFlags().BoolVar(&assumeClosed, "assume-closed", false, "treat the game as closed without checking processes")

	snapshotsListCmd.Flags().StringVar(&listBucket, "bucket", "", "only this bucket (closed_manual, runtime_f5, pre_raid_auto)")
	snapshotsListCmd.Flags().BoolVar(&listAll, "all", false, "include snapshots that failed integrity checks")
	snapshotsRestoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip the confirmation prompt")
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", ".", "directory for the archive")
	exportCmd.Flags().BoolVar(&exportGCS, "gcs", false, "upload to export.gcs_bucket")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "upload to export.s3_bucket")
	configDetectCmd.Flags().BoolVar(&detectApply, "apply", false, "save the best candidate as save_root")

	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsSaveCmd, snapshotsRestoreCmd, snapshotsImportCmd)
	configCmd.AddCommand(configShowCmd, configDetectCmd, configSetSaveRootCmd)
	rootCmd.AddCommand(guiCmd, verifyCmd, monitorCmd, snapshotsCmd, exportCmd, historyCmd, configCmd, settingsCmd)
}

// openApp wires the app for a command from the global flags.
func openApp() (*app, error) {
	d := deps
	d.assumeClosed = d.assumeClosed || assumeClosed
	return newApp(configPath, d)
}
