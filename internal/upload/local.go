package upload

import (
	"context"
	"fmt"
	"path/filepath"

	"revit-server-backup/internal/config"
	"revit-server-backup/internal/transfer"
)

// LocalUploader copies backups into a second directory tree, typically a
// mounted share
type LocalUploader struct {
	basePath string
	copier   *transfer.Verifier
}

// NewLocalUploader creates an uploader rooted at cfg.BasePath
func NewLocalUploader(cfg config.LocalConfig) (*LocalUploader, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local upload base path is required")
	}
	return &LocalUploader{basePath: cfg.BasePath, copier: transfer.NewVerifier()}, nil
}

// Name returns the provider name
func (l *LocalUploader) Name() string {
	return string(config.UploadProviderLocal)
}

// Upload copies localPath to basePath/remoteFolder/<file name>
func (l *LocalUploader) Upload(ctx context.Context, localPath, remoteFolder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(l.basePath, filepath.FromSlash(objectKey(remoteFolder, localPath)))
	if _, err := l.copier.CopyToTarget(localPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}
