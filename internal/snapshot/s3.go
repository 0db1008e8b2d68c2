package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hanpama/normcache/internal/store"
)

// DefaultS3Key is the object key used when S3Config.Key is empty.
const DefaultS3Key = "normcache/cache.json"

// S3Config holds the parameters of an S3-compatible (AWS S3 or MinIO) sink.
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Endpoint        string `yaml:"endpoint"` // optional; custom endpoint such as MinIO
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
	// HTTPClient overrides the SDK transport.
	HTTPClient *http.Client `yaml:"-"`
}

// S3Sink stores the snapshot as a single object.
type S3Sink struct {
	client *s3.Client
	bucket string
	key    string
	codec  Codec
}

// NewS3 creates an S3 sink from cfg.
func NewS3(ctx context.Context, cfg S3Config, codec Codec) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	key := cfg.Key
	if key == "" {
		key = DefaultS3Key
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &S3Sink{client: client, bucket: cfg.Bucket, key: key, codec: codec}, nil
}

func (s *S3Sink) Driver() Driver { return DriverS3 }

func (s *S3Sink) Save(ctx context.Context, snap store.Snapshot) error {
	data, err := s.codec.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(s.codec.ContentType()),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *S3Sink) Load(ctx context.Context) (store.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if err != nil {
		if isS3NotFound(err) {
			return store.Snapshot{}, ErrNotFound
		}
		return store.Snapshot{}, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return store.Snapshot{}, err
	}
	var snap store.Snapshot
	if err := s.codec.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return snap, nil
}

func (s *S3Sink) Close() error { return nil }

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
