package source

import (
	"context"
	"fmt"
	"slices"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings of a MinIO bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

// MinioStore serves objects from a MinIO or other S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	opts   options
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore connects to cfg.Endpoint and checks that the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig, opts ...Option) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: minio endpoint and bucket are required", ErrInvalidConfig)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: bucket %s does not exist", ErrInvalidConfig, cfg.Bucket)
	}
	return NewMinioStoreFromClient(client, cfg.Bucket, opts...)
}

// NewMinioStoreFromClient wraps an existing client.
func NewMinioStoreFromClient(client *minio.Client, bucket string, opts ...Option) (*MinioStore, error) {
	if client == nil || bucket == "" {
		return nil, fmt.Errorf("%w: client and bucket are required", ErrInvalidConfig)
	}
	o, err := newOptions("minio-source", opts)
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: bucket, opts: o}, nil
}

func (s *MinioStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.fetchError(key, err)
	}
	defer obj.Close()

	data, err := readLimited(obj, key, s.opts.maxSize)
	if err != nil {
		return nil, s.fetchError(key, err)
	}
	s.opts.logger.Debug("object fetched", "bucket", s.bucket, "key", key, "bytes", len(data))
	return data, nil
}

func (s *MinioStore) fetchError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.opts.logger.Error("failed to get object", "bucket", s.bucket, "key", key, "err", err)
	return fmt.Errorf("failed to get %s: %w", key, err)
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MinioStore) Close() error {
	return nil
}
