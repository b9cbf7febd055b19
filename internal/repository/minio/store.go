// Package minio implements the content blob store used for message payload
// offload.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Config represents MinIO store configuration
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

// Store keeps message payloads in a single bucket, keyed by
// queueID/messageID.
type Store struct {
	client *minio.Client
	config *Config
	logger *logger.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewStore creates a new MinIO content store.
func NewStore(config *Config, log *logger.Logger) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Store{client: client, config: config, logger: log}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.config.BucketName)
		if err != nil {
			s.ensureErr = fmt.Errorf("failed to check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.config.BucketName, minio.MakeBucketOptions{}); err != nil {
			s.ensureErr = fmt.Errorf("failed to create bucket: %w", err)
			return
		}
		s.logger.Info("Created content bucket", logger.String("bucket", s.config.BucketName))
	})
	return s.ensureErr
}

// Put uploads one payload.
func (s *Store) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	if err := s.EnsureBucket(ctx); err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.config.BucketName, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectName, err)
	}
	return nil
}

// Get downloads one payload and its content type.
func (s *Store) Get(ctx context.Context, objectName string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.config.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object %s: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s: %w", objectName, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		return data, "", nil
	}
	return data, stat.ContentType, nil
}

// Delete removes one payload.
func (s *Store) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.config.BucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectName, err)
	}
	return nil
}
