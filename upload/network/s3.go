package network

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-chunkupload/upload/chunk"
	"github.com/bitrise-io/go-utils/v2/log"
)

// S3Config holds configuration for the S3 transmitter.
type S3Config struct {
	Bucket string
	Region string
	// AccessKeyID and SecretAccessKey are optional; when empty, credentials
	// are resolved from the environment.
	AccessKeyID     string
	SecretAccessKey string
	Logger          log.Logger
}

// S3Transmitter stores each chunk as its own object named
// <upload key>/chunk_<index>, leaving reassembly to the consumer of the
// bucket.
type S3Transmitter struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   log.Logger
}

// NewS3Transmitter ...
func NewS3Transmitter(ctx context.Context, cfg S3Config) (*S3Transmitter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("Bucket must not be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*awsCfg)
	return &S3Transmitter{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

// Transmit uploads one chunk object. Client-fault API errors are fatal
// rejections; everything else is transient.
func (t *S3Transmitter) Transmit(ctx context.Context, c chunk.Chunk, body io.Reader, meta Metadata) error {
	key := ObjectKey(meta.UploadKey, c.Index)

	_, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String("application/octet-stream"),
		ContentLength: aws.Int64(c.Size),
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transmit chunk %d: %w", c.Index+1, ctx.Err())
		}

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
			return &TransmitError{
				Message: fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()),
				Fatal:   true,
			}
		}
		return &TransmitError{Message: fmt.Sprintf("put chunk object: %s", err)}
	}

	t.logger.Debugf("Stored chunk object s3://%s/%s", t.bucket, key)
	return nil
}

// ObjectKey returns the bucket key a chunk is stored under. Indices are
// zero-padded so listing the prefix yields chunks in order.
func ObjectKey(uploadKey string, index int) string {
	return fmt.Sprintf("%s/chunk_%05d", uploadKey, index)
}

func loadAWSConfig(ctx context.Context, cfg S3Config, logger log.Logger) (*aws.Config, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	} else {
		logger.Debugf("aws credentials not defined, loading credentials from environment...")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &awsCfg, nil
}
