// Package blob implements the content-addressed image sink on an
// S3-compatible object store (R2, minio, or AWS proper).
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
)

// S3Store writes image blobs to a bucket and returns canonical public URLs.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
	logger    arbor.ILogger
}

// NewS3Store builds a client against the configured endpoint. Static
// credentials come from the BLOB_* settings.
func NewS3Store(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*S3Store, error) {
	if cfg.Blob.Bucket == "" {
		return nil, fmt.Errorf("blob bucket is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Blob.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Blob.AccessKey, cfg.Blob.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Blob.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Blob.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:    client,
		bucket:    cfg.Blob.Bucket,
		publicURL: strings.TrimRight(cfg.Blob.PublicURL, "/"),
		logger:    logger,
	}, nil
}

// Put writes data under key. Keys are content hashes, so replays overwrite
// identical bytes and the operation stays idempotent.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store blob %s: %w", key, err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Blob stored")
	return s.URLFor(key), nil
}

// Exists reports whether an object is already stored under key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head blob %s: %w", key, err)
	}
	return true, nil
}

// URLFor returns the canonical public URL for a stored key.
func (s *S3Store) URLFor(key string) string {
	return s.publicURL + "/" + key
}
