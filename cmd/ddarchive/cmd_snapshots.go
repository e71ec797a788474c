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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/pkg/ux"
	"github.com/AleutianAI/ddarchive/pkg/validation"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// errRestoreCancelled is returned when the user declines the confirmation.
var errRestoreCancelled = errors.New("restore cancelled")

// =============================================================================
// list
// =============================================================================

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snaps, err := listSnapshots(a, listBucket, listAll)
	if err != nil {
		return err
	}
	printSnapshots(os.Stdout, snaps)
	return nil
}

// listSnapshots returns the displayed buckets (or one bucket) newest first.
func listSnapshots(a *app, bucket string, includeInvalid bool) ([]snapshot.Info, error) {
	if bucket != "" {
		b, err := snapshot.ParseBucket(bucket)
		if err != nil {
			return nil, err
		}
		return a.snaps.List(b, includeInvalid)
	}

	all, err := a.snaps.List("", includeInvalid)
	if err != nil {
		return nil, err
	}
	shown := all[:0]
	for _, s := range all {
		if s.Bucket != snapshot.BucketRuntimePollTemp {
			shown = append(shown, s)
		}
	}
	return shown, nil
}

// printSnapshots writes a table, or tab-separated lines in machine mode.
func printSnapshots(w io.Writer, snaps []snapshot.Info) {
	if ux.GetPersonalityLevel() == ux.PersonalityMachine {
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				s.SnapshotID, s.Bucket, s.Reason, s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				integrityLabel(s), s.SizeBytes)
		}
		return
	}
	if len(snaps) == 0 {
		fmt.Fprintln(w, ux.Styles.Muted.Render("no snapshots"))
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ux.Styles.Muted).
		Headers("Time", "Bucket", "Reason", "In raid", "Integrity", "Size", "Snapshot").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ux.Styles.Highlight.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, s := range snaps {
		t.Row(
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			s.Bucket.Label(),
			s.Reason.Label(),
			formatFlag(s.InRaidAtCapture),
			integrityLabel(s),
			ux.FormatBytes(s.SizeBytes),
			s.SnapshotID,
		)
	}
	fmt.Fprintln(w, t.Render())
}

func integrityLabel(s snapshot.Info) string {
	if s.IntegrityOK {
		return "OK"
	}
	return "INVALID"
}

// =============================================================================
// save
// =============================================================================

func runSnapshotsSave(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.engine.TriggerManualClosed(cmd.Context())
	if err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("snapshot saved: %s", snap.SnapshotID))
	return nil
}

// =============================================================================
// restore
// =============================================================================

func runSnapshotsRestore(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	confirm := confirmRestore
	if restoreYes {
		confirm = nil
	} else if !ux.IsInteractive() {
		return errors.New("restore needs confirmation; pass --yes when not running in a terminal")
	}
	return restoreSnapshot(cmd.Context(), a, args[0], confirm)
}

// restoreSnapshot finds id, asks confirm (when non-nil) and restores it.
func restoreSnapshot(ctx context.Context, a *app, id string, confirm func(snapshot.Info) (bool, error)) error {
	id, err := validation.SanitizeSnapshotID(id)
	if err != nil {
		return err
	}
	target, err := a.snaps.Find(id)
	if err != nil {
		return err
	}
	if !target.IntegrityOK {
		return fmt.Errorf("snapshot %s failed integrity checks and cannot be restored", id)
	}
	if confirm != nil {
		ok, err := confirm(*target)
		if err != nil {
			return err
		}
		if !ok {
			return errRestoreCancelled
		}
	}

	backup, err := a.engine.Restore(ctx, *target)
	if err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("restored %s", target.SnapshotID))
	ux.KeyValue("pre-restore backup", backup.SnapshotID)
	return nil
}

func confirmRestore(target snapshot.Info) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Restore %s?", target.SnapshotID)).
		Description(fmt.Sprintf("%s, %s. The current profile is backed up first.",
			target.Bucket.Label(), target.Reason.Label())).
		Affirmative("Restore").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
