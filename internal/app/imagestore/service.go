package imagestore

import (
	"context"
	"time"
)

// ServiceConfig holds the configuration required to connect to the image store.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Store is the public interface for image payload storage. Message images are
// written once at send time and read through short-lived presigned URLs.
type Store interface {
	// Put writes an image payload under the given key.
	Put(ctx context.Context, key string, mimeType string, data []byte) error

	// PresignDownload generates a pre-signed URL for reading an image.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Delete removes the image specified by the given key.
	Delete(ctx context.Context, key string) error
}

// NewStore is the factory function for Store. Only S3-compatible backends are
// currently supported.
func NewStore(cfg ServiceConfig) (Store, error) {
	return newS3Store(cfg)
}
