// Package publish uploads produced tiles and manifests to object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/charmbracelet/log"

	"arttiler/pkg/config"
	"arttiler/pkg/raster"
)

// Publisher copies local output files to their serving location
type Publisher interface {
	// Publish uploads files and returns the keys they were stored under
	Publish(ctx context.Context, files []string) ([]string, error)
}

// PutObjectAPI is the subset of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads files to a bucket under a key prefix
type S3Publisher struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *log.Logger
}

// NewS3Publisher builds a publisher from the publish configuration.
// Static credentials and a custom endpoint are used when configured;
// otherwise the default AWS credential chain applies.
func NewS3Publisher(ctx context.Context, cfg config.S3Config, logger *log.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, raster.ConfigError("bucket", "")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3PublisherWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3PublisherWithClient wraps an existing client
func NewS3PublisherWithClient(client PutObjectAPI, bucket, prefix string, logger *log.Logger) *S3Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Key returns the object key for a local file
func (p *S3Publisher) Key(file string) string {
	return path.Join(p.prefix, filepath.Base(file))
}

// ContentType returns the MIME type stored with an uploaded file
func ContentType(file string) string {
	ext := filepath.Ext(file)
	if strings.EqualFold(ext, ".json") {
		return "application/json"
	}
	if format, err := raster.ParseFormat(ext); err == nil {
		return format.ContentType()
	}
	return "application/octet-stream"
}

// Publish uploads every file in order, stopping at the first failure
func (p *S3Publisher) Publish(ctx context.Context, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := p.Key(file)
		if err := p.upload(ctx, file, key); err != nil {
			return keys, err
		}
		p.logger.Debug("uploaded", "file", file, "bucket", p.bucket, "key", key)
		keys = append(keys, key)
	}
	p.logger.Info("published", "bucket", p.bucket, "prefix", p.prefix, "objects", len(keys))
	return keys, nil
}

func (p *S3Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(file)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("upload s3://%s/%s: %s: %s: %w", p.bucket, key, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
		return fmt.Errorf("upload s3://%s/%s: %w", p.bucket, key, err)
	}
	return nil
}
