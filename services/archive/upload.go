// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"
)

const contentType = "application/x-lz4"

// Uploader stores an archive under key in remote object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) error

	// Location renders key as a URL-like string for messages.
	Location(key string) string
}

// UploadFile opens localPath and passes it to u.
func UploadFile(ctx context.Context, u Uploader, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer f.Close()
	return u.Upload(ctx, key, f)
}

// =============================================================================
// Google Cloud Storage
// =============================================================================

// GCSUploader writes archives to a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader creates a client authenticated with a service account key.
//
// An empty credentialsFile falls back to application default credentials.
// Extra options are appended, which tests use to point at a local endpoint.
func NewGCSUploader(ctx context.Context, bucket, credentialsFile string, opts ...option.ClientOption) (*GCSUploader, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is not configured")
	}
	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload streams r into gs://<bucket>/<key> in a single request.
func (u *GCSUploader) Upload(ctx context.Context, key string, r io.Reader) error {
	writer := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"
	writer.ChunkSize = 0

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy archive to GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

// Location returns gs://<bucket>/<key>.
func (u *GCSUploader) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", u.bucket, key)
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// =============================================================================
// S3 and S3-compatible (R2, MinIO)
// =============================================================================

// S3Options configures an S3Uploader.
type S3Options struct {
	Bucket string

	// Endpoint overrides the AWS endpoint, e.g. https://<account>.r2.cloudflarestorage.com.
	// Path-style addressing is used whenever it is set.
	Endpoint string

	// Region defaults to "auto" with a custom endpoint and to the SDK's
	// default chain otherwise.
	Region string

	// AccessKeyID and SecretKey select static credentials. When empty the
	// SDK's default credential chain is used.
	AccessKeyID string
	SecretKey   string
}

// S3Uploader writes archives with the AWS SDK.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader loads AWS configuration and builds the client.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	region := opts.Region
	if region == "" && opts.Endpoint != "" {
		region = "auto"
	}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if opts.AccessKeyID != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{client: client, bucket: opts.Bucket}, nil
}

// Upload puts r at s3://<bucket>/<key>.
//
// Non-seekable readers are buffered so the SDK can sign and checksum the
// body; snapshot archives are a few megabytes at most.
func (u *S3Uploader) Upload(ctx context.Context, key string, r io.Reader) error {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		body = bytes.NewReader(data)
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s: %w", key, u.bucket, err)
	}
	return nil
}

// Location returns s3://<bucket>/<key>.
func (u *S3Uploader) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", u.bucket, key)
}
