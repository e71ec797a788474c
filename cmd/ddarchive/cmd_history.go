// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/pkg/ux"
	"github.com/AleutianAI/ddarchive/services/journal"
)

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := history(cmd.Context(), a, historyLimit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, entries)
	return nil
}

func history(ctx context.Context, a *app, limit int) ([]journal.Entry, error) {
	if a.journal == nil {
		return nil, errors.New("history journal is unavailable (is another ddarchive running?)")
	}
	return a.journal.Recent(ctx, limit)
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history yet")
		return
	}
	machine := ux.GetPersonalityLevel() == ux.PersonalityMachine
	for _, e := range entries {
		ts := e.Time.Local().Format("2006-01-02 15:04:05")
		if machine {
			ts = e.Time.UTC().Format("2006-01-02T15:04:05Z")
		}
		line := fmt.Sprintf("%s  %-8s  %-13s  %s", ts, e.Action, e.Bucket, e.SnapshotID)
		if e.Failed() {
			line += "  error: " + e.Error
			if !machine {
				line = ux.Styles.Error.Render(line)
			}
		}
		fmt.Fprintln(w, line)
	}
}
