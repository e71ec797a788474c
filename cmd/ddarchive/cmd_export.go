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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ddarchive/cmd/ddarchive/config"
	"github.com/AleutianAI/ddarchive/pkg/ux"
	"github.com/AleutianAI/ddarchive/pkg/validation"
	"github.com/AleutianAI/ddarchive/services/archive"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// exportTargets selects the remote copies made after the local archive.
type exportTargets struct {
	GCS bool
	S3  bool
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	targets := exportTargets{GCS: exportGCS, S3: exportS3}
	uploaders, closeAll, err := buildUploaders(ctx, a.cfg.Export, targets)
	if err != nil {
		return err
	}
	defer closeAll()

	_, err = exportSnapshot(ctx, a, args[0], exportOut, uploaders)
	return err
}

// exportSnapshot writes <out>/<id>.tar.lz4 and uploads it with every uploader.
func exportSnapshot(ctx context.Context, a *app, id, out string, uploaders []archive.Uploader) (string, error) {
	id, err := validation.SanitizeSnapshotID(id)
	if err != nil {
		return "", err
	}
	info, err := a.snaps.Find(id)
	if err != nil {
		return "", err
	}

	path, err := archive.ExportFile(ctx, *info, out)
	if err != nil {
		return "", err
	}
	a.logger.Info("snapshot exported", "snapshot_id", info.SnapshotID, "path", path)
	ux.Success("exported " + path)

	key := archive.Key(a.cfg.Export.Prefix, *info)
	for _, up := range uploaders {
		loc := up.Location(key)
		err := ux.WithSpinner("upload "+loc, func() error {
			return archive.UploadFile(ctx, up, path, key)
		})
		if err != nil {
			return path, err
		}
		a.logger.Info("snapshot uploaded", "snapshot_id", info.SnapshotID, "location", loc)
	}
	return path, nil
}

// buildUploaders creates the requested uploaders from the export config.
func buildUploaders(ctx context.Context, cfg config.ExportConfig, targets exportTargets) ([]archive.Uploader, func(), error) {
	var uploaders []archive.Uploader
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	fail := func(err error) ([]archive.Uploader, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	if targets.GCS {
		if cfg.GCSBucket == "" {
			return fail(fmt.Errorf("--gcs needs export.gcs_bucket in config.yaml"))
		}
		up, err := archive.NewGCSUploader(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return fail(err)
		}
		uploaders = append(uploaders, up)
		closers = append(closers, up.Close)
	}
	if targets.S3 {
		if cfg.S3Bucket == "" {
			return fail(fmt.Errorf("--s3 needs export.s3_bucket in config.yaml"))
		}
		up, err := archive.NewS3Uploader(ctx, archive.S3Options{
			Bucket:      cfg.S3Bucket,
			Endpoint:    cfg.S3Endpoint,
			Region:      cfg.S3Region,
			AccessKeyID: cfg.S3AccessKeyID,
			SecretKey:   cfg.S3SecretKey,
		})
		if err != nil {
			return fail(err)
		}
		uploaders = append(uploaders, up)
	}
	return uploaders, closeAll, nil
}

// =============================================================================
// import
// =============================================================================

func runSnapshotsImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := importSnapshot(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("imported %s into %s", info.SnapshotID, info.Bucket.Label()))
	return nil
}

// importSnapshot extracts an archive next to the buckets and adopts it.
func importSnapshot(ctx context.Context, a *app, path string) (*snapshot.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root := a.snaps.SnapshotsRoot()
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp(root, ".import_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	dir, err := archive.Import(ctx, f, tmp)
	if err != nil {
		return nil, err
	}
	return a.snaps.Adopt(ctx, dir)
}
