package storage

import (
	"context"
	"fmt"

	"picshare/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinIOStorage(ctx context.Context, cfg config.MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = joinURL(client.EndpointURL().String(), cfg.Bucket)
	}

	return &MinIOStorage{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (m *MinIOStorage) Upload(ctx context.Context, file *Upload) (string, error) {
	key := objectKey(file.Filename)

	_, err := m.client.FPutObject(ctx, m.bucket, key, file.Path, minio.PutObjectOptions{
		ContentType: file.ContentType,
	})
	if err != nil {
		return "", err
	}

	return joinURL(m.publicURL, key), nil
}

func (m *MinIOStorage) Delete(ctx context.Context, objectURL string) error {
	key, err := keyFromURL(m.publicURL, objectURL)
	if err != nil {
		return err
	}

	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrObjectNotFound
		}
		return err
	}

	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}
