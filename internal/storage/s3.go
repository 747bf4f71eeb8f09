package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const s3Scheme = "s3://"

// S3Store keeps uploaded files in an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// NewS3Store creates the object storage backend. Construction loads
// credentials but does not dial; Probe establishes reachability.
func NewS3Store(ctx context.Context, region, bucket string, logger *zap.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger,
	}, nil
}

// Backend names the bound storage backend.
func (s *S3Store) Backend() string { return "s3" }

// Probe checks the bucket is reachable with the loaded credentials.
func (s *S3Store) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		return fmt.Errorf("bucket %s unreachable: %w", s.bucket, err)
	}
	return nil
}

// Put uploads the file and returns an s3:// locator.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		s.logger.Error("Failed to upload object",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Debug("Object stored",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("size", len(data)))
	return s3Scheme + s.bucket + "/" + key, nil
}

// Get downloads a file from an s3:// locator.
func (s *S3Store) Get(ctx context.Context, locator string) ([]byte, error) {
	bucket, key, err := parseS3Locator(locator)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func parseS3Locator(locator string) (bucket, key string, err error) {
	if !strings.HasPrefix(locator, s3Scheme) {
		return "", "", fmt.Errorf("not an s3 locator: %s", locator)
	}
	rest := strings.TrimPrefix(locator, s3Scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 locator: %s", locator)
	}
	return parts[0], parts[1], nil
}
