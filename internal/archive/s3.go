package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNoBucket is returned when an S3 sink is configured without a bucket.
var ErrNoBucket = errors.New("archive: s3 bucket required")

const snapshotContentType = "application/zstd"

// S3Config holds S3 sink construction parameters.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	UsePathStyle    bool
	AccessKeyID     string // optional; falls back to the default credential chain
	SecretAccessKey string

	// HTTPClient replaces the SDK's HTTP client. Used by tests.
	HTTPClient *http.Client
}

// S3Sink uploads snapshots to a single bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates a sink from cfg.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key for a snapshot of doc.
func (s *S3Sink) Key(doc *Document) string {
	return path.Join(s.prefix, SnapshotName(doc))
}

// Put compresses doc and uploads it. Returns the object key.
func (s *S3Sink) Put(ctx context.Context, doc Document) (string, error) {
	body, err := MarshalSnapshot(doc)
	if err != nil {
		return "", err
	}

	key := s.Key(&doc)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(snapshotContentType),
		Metadata: map[string]string{
			"seed":   fmt.Sprintf("%d", doc.Seed),
			"digest": doc.Digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
