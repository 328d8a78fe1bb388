package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/snapshots"
)

// Archiver persists consumed snapshots to long-term storage before the
// sweeper deletes them. Archiving failure must block deletion for that
// sweep: archive-then-delete, never delete-then-archive.
type Archiver interface {
	ArchiveSnapshots(ctx context.Context, snaps []*snapshots.StateSnapshot) error
}

// S3Archiver writes snapshot batches as NDJSON objects keyed by date.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver creates an S3-backed archiver.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials, for MinIO or AWS with explicit keys.
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ArchiveSnapshots uploads one NDJSON object containing the batch.
func (a *S3Archiver) ArchiveSnapshots(ctx context.Context, snaps []*snapshots.StateSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, snap := range snaps {
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot %d: %w", snap.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%s/%s.ndjson",
		a.prefix, time.Now().UTC().Format("2006/01/02"), uuid.NewString())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot archive %s: %w", key, err)
	}
	return nil
}
