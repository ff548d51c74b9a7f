package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cloo-solutions/docsage/internal/domain"
)

const (
	rawKeyPrefix    = "raw/"
	htmlContentType = "text/html; charset=utf-8"
	sourceURLMeta   = "source-url"
)

// S3API is the subset of the S3 client used by the archive
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ClientConfig holds configuration for RawPageArchive
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// RawPageArchive keeps the original HTML of crawled pages in S3-compatible storage (e.g., RustFS)
type RawPageArchive struct {
	client S3API
	bucket string
}

// NewRawPageArchive creates an archive with the given configuration
func NewRawPageArchive(ctx context.Context, cfg S3ClientConfig) (*RawPageArchive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, domain.ErrStoreNotConfigured
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewRawPageArchiveWithClient(client, cfg.Bucket), nil
}

// NewRawPageArchiveWithClient wraps an existing S3 client.
func NewRawPageArchiveWithClient(client S3API, bucket string) *RawPageArchive {
	return &RawPageArchive{client: client, bucket: bucket}
}

// RawKey returns the object key for a page URL. Chunk suffixes are ignored so
// every unit of a page maps to one object.
func RawKey(pageURL string) string {
	sum := sha256.Sum256([]byte(domain.ParentURL(strings.TrimSpace(pageURL))))
	return rawKeyPrefix + hex.EncodeToString(sum[:]) + ".html"
}

// PutRawHTML stores html for pageURL and returns the object key.
func (a *RawPageArchive) PutRawHTML(ctx context.Context, pageURL string, html string) (string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "page URL is required")
	}
	key := RawKey(pageURL)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(html),
		ContentType: aws.String(htmlContentType),
		Metadata:    map[string]string{sourceURLMeta: domain.ParentURL(pageURL)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put raw html: %w", err)
	}

	return key, nil
}

// GetRawHTML returns the archived html for pageURL.
func (a *RawPageArchive) GetRawHTML(ctx context.Context, pageURL string) (string, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(RawKey(pageURL)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", domain.ErrDocumentNotFound
		}
		return "", fmt.Errorf("failed to get raw html: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read raw html: %w", err)
	}
	return string(body), nil
}

// DeleteRawHTML removes the archived html for pageURL
func (a *RawPageArchive) DeleteRawHTML(ctx context.Context, pageURL string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(RawKey(pageURL)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete raw html: %w", err)
	}

	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *RawPageArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
