package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/model"
)

// MinioConfig holds the object store settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Minio is a FileStore on one bucket
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio connects and creates the bucket when missing
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("File bucket created")
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("MinIO connected")
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (model.FileRef, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return model.FileRef{}, fmt.Errorf("upload %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int64("size", info.Size).Msg("File uploaded")
	return model.FileRef{
		Key:         key,
		Name:        path.Base(key),
		Size:        info.Size,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

func (m *Minio) List(ctx context.Context, prefix string) ([]model.FileRef, error) {
	out := make([]model.FileRef, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		out = append(out, model.FileRef{
			Key:         obj.Key,
			Name:        path.Base(obj.Key),
			Size:        obj.Size,
			ContentType: obj.ContentType,
			UploadedAt:  obj.LastModified,
		})
	}
	return out, nil
}

func (m *Minio) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

var _ FileStore = (*Minio)(nil)
