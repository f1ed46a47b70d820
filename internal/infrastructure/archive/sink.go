// Package archive stores assessment JSON documents in S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

const prefix = "assessments"

// Sink writes assessments/{date}/{id}.json objects.
type Sink struct {
	minioClient *minio.Client
	bucket      string
}

var _ ports.Sink = (*Sink)(nil)

// New creates a new S3/MinIO sink.
func New(cfg config.ArchiveConfig) (*Sink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Sink{minioClient: minioClient, bucket: cfg.Bucket}, nil
}

// Name identifies the sink in logs.
func (s *Sink) Name() string {
	return "archive"
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Sink) EnsureBucket(ctx context.Context) error {
	exists, err := s.minioClient.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.minioClient.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectName returns the archive key of an assessment.
func ObjectName(a domain.Assessment) string {
	return path.Join(prefix, a.CreatedAt.UTC().Format("2006-01-02"), a.ID+".json")
}

// Publish uploads the assessment as indented JSON.
func (s *Sink) Publish(ctx context.Context, a domain.Assessment) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	_, err = s.minioClient.PutObject(ctx, s.bucket, ObjectName(a), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put assessment: %w", err)
	}
	return nil
}
