package modelstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// S3Config configures the S3 model backend.
type S3Config struct {
	// Bucket is the S3 bucket for storing models
	Bucket string

	// Prefix is prepended to all object keys (e.g., "models/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration

	StorageClass types.StorageClass
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket string) S3Config {
	return S3Config{
		Bucket:       bucket,
		Prefix:       "models/",
		Timeout:      30 * time.Second,
		StorageClass: types.StorageClassStandard,
	}
}

// S3Backend stores one JSON object per model.
type S3Backend struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Backend creates a new S3 model backend.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.CodeStoreInit, "s3 bucket is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Backend{
		cfg:    cfg,
		client: client,
	}, nil
}

func (b *S3Backend) key(id string) string {
	return b.cfg.Prefix + id + recordExt
}

// Save uploads the record.
func (b *S3Backend) Save(ctx context.Context, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(b.cfg.Bucket),
		Key:          aws.String(b.key(rec.ID)),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		StorageClass: b.cfg.StorageClass,
		Metadata:     map[string]string{"session-id": rec.SessionID},
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to save record to S3").
			WithContext("id", rec.ID)
	}
	return nil
}

// Load downloads a record.
func (b *S3Backend) Load(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return nil, errors.ModelNotFound(id)
		}
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to load record from S3").
			WithContext("id", id)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to read record data").
			WithContext("id", id)
	}
	return decodeRecord(id, data)
}

// Delete removes a record object.
func (b *S3Backend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// List pages through the prefix and loads every record.
func (b *S3Backend) List(ctx context.Context, sessionID string) ([]*Record, error) {
	var (
		records []*Record
		token   *string
	)

	for {
		output, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.cfg.Bucket),
			Prefix:            aws.String(b.cfg.Prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to list records").
				WithContext("bucket", b.cfg.Bucket)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, recordExt) {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(key, b.cfg.Prefix), recordExt)

			rec, err := b.Load(ctx, id)
			if err != nil {
				continue
			}
			records = append(records, rec)
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		token = output.NextContinuationToken
	}

	records = filterSession(records, sessionID)
	sortRecords(records)
	return records, nil
}

// Name returns "s3".
func (b *S3Backend) Name() string {
	return "s3"
}

// Close does nothing; the S3 client holds no persistent connections.
func (b *S3Backend) Close() error {
	return nil
}
