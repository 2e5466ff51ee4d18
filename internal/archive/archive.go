// Package archive copies accepted uploads to S3 so the original bytes
// survive after the in-memory task is gone. Archiving is best effort:
// the import pipeline never waits on it and never fails because of it.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archiver writes upload payloads to an S3 bucket under
// imports/<jobID>/<filename>.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver creates an archiver for the given bucket. An empty
// profile uses the default credential chain (IAM role on ECS).
func NewS3Archiver(ctx context.Context, bucket, region, profile string) (*S3Archiver, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// Store uploads one payload. The key embeds the job id so re-uploads of
// the same filename never collide.
func (a *S3Archiver) Store(ctx context.Context, jobID, filename string, payload []byte) error {
	key := ObjectKey(jobID, filename)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType(filename)),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}

	log.Printf("[Archive] job %s: stored s3://%s/%s (%d bytes)", jobID, a.bucket, key, len(payload))
	return nil
}

// ObjectKey is the bucket key for one archived upload.
func ObjectKey(jobID, filename string) string {
	return fmt.Sprintf("imports/%s/%s", jobID, filepath.Base(filename))
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	case ".txt":
		return "text/plain"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
