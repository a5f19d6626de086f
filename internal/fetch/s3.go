package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
)

// S3Fetcher retrieves documents from an S3 bucket, keyed by document id.
type S3Fetcher struct {
	client   *s3.Client
	bucket   string
	maxBytes int64
	logger   *slog.Logger
}

func NewS3Fetcher(ctx context.Context, cfg *cfg.Config) (*S3Fetcher, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.AwsRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Fetcher{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   cfg.BucketName,
		maxBytes: cfg.FetchMaxBytes,
		logger:   slog.Default().With("component", "fetch.s3"),
	}, nil
}

// Fetch downloads the object into memory after a HeadObject size check.
func (f *S3Fetcher) Fetch(ctx context.Context, documentID string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	head, err := f.client.HeadObject(ctxGet, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(documentID),
	})
	if err != nil {
		return nil, classifyS3Error(documentID, err)
	}
	if head.ContentLength != nil && *head.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", core.ErrSizeLimit, documentID, *head.ContentLength, f.maxBytes)
	}

	downloader := manager.NewDownloader(f.client)
	buf := manager.NewWriteAtBuffer(nil)
	_, err = downloader.Download(ctxGet, buf, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(documentID),
	})
	if err != nil {
		return nil, classifyS3Error(documentID, err)
	}

	data := buf.Bytes()
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s grew past the %d byte limit during transfer", core.ErrSizeLimit, documentID, f.maxBytes)
	}

	f.logger.Debug("document fetched", "key", documentID, "bytes", len(data))
	return data, nil
}

func classifyS3Error(key string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: s3 key %s", core.ErrNotFound, key)
	}
	return fmt.Errorf("%w: s3 get %s: %v", core.ErrTransient, key, err)
}
