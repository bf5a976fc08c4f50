// Package storage provides S3-compatible object storage (MinIO in development)
// for pack images and profile pictures.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrUnavailable is returned when storage is not configured or unreachable
	ErrUnavailable = errors.New("storage unavailable")
	// ErrNotConfigured is returned by NewFromEnv when S3_* variables are absent
	ErrNotConfigured = errors.New("storage not configured")
)

const defaultRegion = "us-east-1"

// Service defines the interface for storage operations
type Service interface {
	// Upload stores body under key and returns the object's public URL
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)

	// Delete removes an object by key
	Delete(ctx context.Context, key string) error

	// KeyFromURL recovers the object key from a URL returned by Upload
	KeyFromURL(objectURL string) (string, bool)

	// EnsureBucketExists creates the bucket if it doesn't exist
	EnsureBucketExists(ctx context.Context) error

	// Health checks if the storage service is accessible
	Health(ctx context.Context) error
}

// Config holds S3 connection settings
type Config struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
}

// ConfigFromEnv reads S3_* variables
func ConfigFromEnv() Config {
	return Config{
		Endpoint:       os.Getenv("S3_ENDPOINT"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Bucket:         os.Getenv("S3_BUCKET_NAME"),
		Region:         os.Getenv("S3_REGION"),
		UseSSL:         os.Getenv("S3_USE_SSL") == "true",
	}
}

func (c Config) scheme() string {
	if c.UseSSL {
		return "https"
	}
	return "http"
}

type service struct {
	client     *s3.Client
	bucketName string
	publicBase string
}

// NewFromEnv creates a storage service from S3_* variables. It returns
// ErrNotConfigured when S3_ENDPOINT is unset so callers can run without images.
func NewFromEnv(ctx context.Context) (Service, error) {
	cfg := ConfigFromEnv()
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	return New(ctx, cfg)
}

// New creates a storage service for an S3-compatible endpoint using path-style addressing
func New(ctx context.Context, cfg Config) (Service, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("S3_ENDPOINT environment variable is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("S3_ACCESS_KEY environment variable is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3_SECRET_KEY environment variable is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME environment variable is required")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.PublicEndpoint == "" {
		cfg.PublicEndpoint = cfg.Endpoint
	}

	endpointURL := fmt.Sprintf("%s://%s", cfg.scheme(), cfg.Endpoint)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpointURL)
		o.UsePathStyle = true
	})

	s := &service{
		client:     client,
		bucketName: cfg.Bucket,
		publicBase: fmt.Sprintf("%s://%s/%s/", cfg.scheme(), cfg.PublicEndpoint, cfg.Bucket),
	}

	slog.Info("Storage configured",
		"endpoint", cfg.Endpoint,
		"public_endpoint", cfg.PublicEndpoint,
		"bucket", cfg.Bucket)

	return s, nil
}

// EnsureBucketExists creates the bucket if it doesn't already exist
func (s *service) EnsureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	slog.Info("Created S3 bucket", "bucket", s.bucketName)
	return nil
}

func (s *service) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if key == "" {
		return "", fmt.Errorf("file key cannot be empty")
	}
	if contentType == "" {
		return "", fmt.Errorf("content type cannot be empty")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to upload %s: %v", ErrUnavailable, key, err)
	}

	return s.objectURL(key), nil
}

func (s *service) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("file key cannot be empty")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", key, err)
	}

	return nil
}

func (s *service) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBase + strings.Join(segments, "/")
}

func (s *service) KeyFromURL(objectURL string) (string, bool) {
	rest, ok := strings.CutPrefix(objectURL, s.publicBase)
	if !ok || rest == "" {
		return "", false
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return key, true
}

// Health checks if the storage service is accessible
func (s *service) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
