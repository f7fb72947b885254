// Package snapshots uploads raw page artifacts to S3-compatible object storage (AWS S3, Cloudflare R2, MinIO).
package snapshots

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// S3Store implements interfaces.SnapshotStore on an S3 bucket
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger arbor.ILogger
}

// NopStore is used when snapshots are disabled
type NopStore struct{}

func (NopStore) Enabled() bool { return false }

func (NopStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	return "", nil
}

// NewStore returns an S3Store when snapshots are enabled and a NopStore otherwise
func NewStore(ctx context.Context, cfg common.SnapshotsConfig, logger arbor.ILogger) (interfaces.SnapshotStore, error) {
	if !cfg.Enabled {
		return NopStore{}, nil
	}
	return NewS3Store(ctx, cfg, logger)
}

// NewS3Store creates the S3 client. A custom endpoint selects R2 or another S3-compatible service.
func NewS3Store(ctx context.Context, cfg common.SnapshotsConfig, logger arbor.ILogger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, models.NewValidationError("snapshots.bucket is required when snapshots are enabled")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimSuffix(cfg.Endpoint, "/"))
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Str("prefix", cfg.Prefix).
		Msg("Snapshot store configured")

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

func (s *S3Store) Enabled() bool { return true }

// Put uploads body under prefix/key and returns the full object key
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey := strings.TrimPrefix(key, "/")
	if s.prefix != "" {
		objectKey = path.Join(s.prefix, objectKey)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", models.NewStorageError("upload snapshot", err)
	}

	s.logger.Debug().
		Str("key", objectKey).
		Int("bytes", len(body)).
		Msg("Snapshot uploaded")
	return objectKey, nil
}
