package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"revit-server-backup/internal/config"
)

// GCSUploader uploads backups to a Google Cloud Storage bucket
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader creates a GCS uploader. Without a credentials path the
// application default credentials are used.
func NewGCSUploader(ctx context.Context, cfg config.GCSConfig) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSUploader{client: client, bucket: cfg.Bucket}, nil
}

// Name returns the provider name
func (g *GCSUploader) Name() string {
	return string(config.UploadProviderGCS)
}

// Upload writes localPath to gs://bucket/remoteFolder/<file name>
func (g *GCSUploader) Upload(ctx context.Context, localPath, remoteFolder string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	key := objectKey(remoteFolder, localPath)
	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"

	if _, err := io.Copy(writer, f); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write gs://%s/%s: %w", g.bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to upload gs://%s/%s: %w", g.bucket, key, err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucket, key), nil
}

// Close releases the underlying client
func (g *GCSUploader) Close() error {
	return g.client.Close()
}
