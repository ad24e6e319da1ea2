// Package s3 uploads objects to an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrExists is returned when upsert is false and the object is present.
var ErrExists = errors.New("object already exists")

// API is the subset of the S3 client used by the blob store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config identifies the bucket and endpoint.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// BlobStore writes objects to one bucket.
type BlobStore struct {
	api    API
	bucket string
}

// Open builds an S3 client from the default AWS credential chain.
func Open(ctx context.Context, cfg Config) (*BlobStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Bucket)
}

// New wraps an existing client.
func New(api API, bucket string) (*BlobStore, error) {
	if api == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{api: api, bucket: bucket}, nil
}

// Upload writes data to path. Without upsert an existing object is left untouched.
func (s *BlobStore) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	if !upsert {
		exists, err := s.exists(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

// URI returns the s3:// location of path.
func (s *BlobStore) URI(path string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, path)
}

func (s *BlobStore) exists(ctx context.Context, path string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return true, nil
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", path, err)
}
