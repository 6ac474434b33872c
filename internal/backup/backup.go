// Package backup uploads re-signed containers to an S3-compatible bucket so
// that a batch run leaves an off-machine copy of every output file.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// Uploader stores named blobs in a remote bucket.
type Uploader interface {
	// Upload stores data under the given name.
	Upload(ctx context.Context, name string, data []byte) error

	// Exists reports whether an object with the given name is present.
	Exists(ctx context.Context, name string) (bool, error)
}

// Options configures the S3 uploader.
type Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type s3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	logger *logrus.Logger
}

// NewS3Uploader creates an uploader backed by an S3-compatible endpoint.
func NewS3Uploader(ctx context.Context, opts Options, logger *logrus.Logger) (Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("backup bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &s3Uploader{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: logger,
	}, nil
}

// Upload stores data under the given name.
func (u *s3Uploader) Upload(ctx context.Context, name string, data []byte) error {
	key := u.key(name)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u.logger.WithFields(logrus.Fields{
		"bucket": u.bucket,
		"key":    key,
		"bytes":  len(data),
	}).Info("Uploaded backup object")
	return nil
}

// Exists reports whether an object with the given name is present.
func (u *s3Uploader) Exists(ctx context.Context, name string) (bool, error) {
	key := u.key(name)
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return true, nil
}

func (u *s3Uploader) key(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}
