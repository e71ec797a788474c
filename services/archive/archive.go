// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive packs snapshots into portable .tar.lz4 files and ships
// them to off-site object storage.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4"

	"github.com/AleutianAI/ddarchive/pkg/validation"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// Extension is appended to exported snapshot ids.
const Extension = ".tar.lz4"

// ErrUnsafePath is returned by Import for entries escaping the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// FileName returns "<snapshot_id>.tar.lz4".
func FileName(info snapshot.Info) string {
	return info.SnapshotID + Extension
}

// Key builds the object key "<prefix>/profile_<n>/<bucket>/<snapshot_id>.tar.lz4".
func Key(prefix string, info snapshot.Info) string {
	return path.Join(prefix, fmt.Sprintf("profile_%d", info.Profile), string(info.Bucket), FileName(info))
}

// Export writes the snapshot directory to w as an lz4-compressed tar stream.
//
// # Description
//
// Every entry is stored under "<snapshot_id>/", so an archive always
// extracts into a single directory. meta.json is included, which lets
// Import restore a snapshot that lists like any other.
//
// # Inputs
//
//   - ctx: checked between files
//   - info: snapshot to export; info.Path must exist
//   - w: destination stream
//
// # Outputs
//
//   - error: nil on success
func Export(ctx context.Context, info snapshot.Info, w io.Writer) error {
	if info.Path == "" || info.SnapshotID == "" {
		return fmt.Errorf("export: snapshot has no path")
	}
	if fi, err := os.Stat(info.Path); err != nil || !fi.IsDir() {
		return fmt.Errorf("export: %w: %s", snapshot.ErrSnapshotNotFound, info.SnapshotID)
	}

	zw := lz4.NewWriter(w)
	tw := tar.NewWriter(zw)

	err := filepath.Walk(info.Path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(info.Path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if !fi.Mode().IsRegular() && !fi.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Format = tar.FormatPAX
		hdr.Name = path.Join(info.SnapshotID, filepath.ToSlash(rel))
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("export %s: %w", info.SnapshotID, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close lz4 stream: %w", err)
	}
	return nil
}

// ExportFile writes the archive to dir/FileName(info) and returns its path.
// A partial file is removed on failure.
func ExportFile(ctx context.Context, info snapshot.Info, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	out := filepath.Join(dir, FileName(info))
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := Export(ctx, info, f); err != nil {
		f.Close()
		_ = os.Remove(out)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	return out, nil
}

// Import extracts an archive produced by Export into dst.
//
// # Description
//
// Entries with absolute paths, ".." components, links or special files
// are rejected with ErrUnsafePath and nothing further is written. File
// modes and modification times are restored.
//
// # Outputs
//
//   - string: the extracted top-level directory (dst/<snapshot_id>)
//   - error: ErrUnsafePath, or a decode/IO error
func Import(ctx context.Context, r io.Reader, dst string) (string, error) {
	tr := tar.NewReader(lz4.NewReader(r))
	root := ""

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read archive: %w", err)
		}

		target, top, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return "", err
		}
		if root == "" {
			if err := validation.ValidateSnapshotID(top); err != nil {
				return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
			}
			root = top
		} else if top != root {
			return "", fmt.Errorf("%w: %s is outside %s", ErrUnsafePath, hdr.Name, root)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("%w: unsupported entry type for %s", ErrUnsafePath, hdr.Name)
		}
	}

	if root == "" {
		return "", errors.New("archive is empty")
	}
	return filepath.Join(dst, root), nil
}

func writeEntry(r io.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chtimes(target, hdr.ModTime, hdr.ModTime)
}

// safeJoin resolves name under dst and returns the path plus its first component.
func safeJoin(dst, name string) (string, string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.IsAbs(name) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}
	top := strings.SplitN(clean, "/", 2)[0]
	return filepath.Join(dst, filepath.FromSlash(clean)), top, nil
}
