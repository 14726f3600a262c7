// Package upload ships finished backups to remote storage. A Service packages
// the local backup (optional compression and encryption), hands it to the
// configured provider and retries transient provider failures.
package upload

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"revit-server-backup/internal/config"
	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
)

// Uploader places a local file into a remote folder and returns the remote
// identifier of the stored file. Uploading the same file name into the same
// folder again replaces the earlier copy.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, localPath, remoteFolder string) (string, error)
}

// NewUploader creates the provider selected by cfg.Provider
func NewUploader(ctx context.Context, cfg config.UploadConfig) (Uploader, error) {
	switch cfg.Provider {
	case config.UploadProviderDrive:
		return NewDriveUploader(ctx, cfg.Drive)
	case config.UploadProviderS3:
		return NewS3Uploader(cfg.S3)
	case config.UploadProviderGCS:
		return NewGCSUploader(ctx, cfg.GCS)
	case config.UploadProviderAzure:
		return NewAzureUploader(cfg.Azure)
	case config.UploadProviderLocal:
		return NewLocalUploader(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported upload provider: %s", cfg.Provider)
	}
}

// SupportedProviders lists the provider names accepted in configuration
func SupportedProviders() []config.UploadProvider {
	return []config.UploadProvider{
		config.UploadProviderDrive,
		config.UploadProviderS3,
		config.UploadProviderGCS,
		config.UploadProviderAzure,
		config.UploadProviderLocal,
	}
}

// Service uploads model backups below a fixed remote root folder
type Service struct {
	uploader   Uploader
	packager   *Packager
	remoteRoot string
	maxRetries int
	logger     *logging.Logger
	newBackOff func() backoff.BackOff
}

// NewService creates an upload service. Packaging artifacts are staged in
// workDir.
func NewService(uploader Uploader, cfg config.UploadConfig, workDir string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		uploader:   uploader,
		packager:   NewPackager(cfg, workDir),
		remoteRoot: cfg.RemoteFolder,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 5 * time.Minute
			return b
		},
	}
}

// Provider returns the name of the underlying provider
func (s *Service) Provider() string {
	return s.uploader.Name()
}

// RemoteFolder returns the remote folder a model's backup is placed in. The
// model's parent directories are mirrored below the remote root.
func (s *Service) RemoteFolder(modelID string) string {
	dir := path.Dir(toSlash(modelID))
	if dir == "." || dir == "/" {
		return toSlash(s.remoteRoot)
	}
	return path.Join(toSlash(s.remoteRoot), dir)
}

// UploadBackup packages the backup at localPath and uploads it into the
// remote folder for modelID
func (s *Service) UploadBackup(ctx context.Context, modelID, localPath string) (string, error) {
	start := time.Now()
	folder := s.RemoteFolder(modelID)

	artifact, err := s.packager.Package(localPath)
	if err != nil {
		uploadErr := appErrors.NewUploadError("failed to package backup", err).
			WithContext("model", modelID).
			WithContext("provider", s.Provider())
		s.logger.LogUpload(s.Provider(), localPath, "", time.Since(start), uploadErr)
		return "", uploadErr
	}
	defer func() {
		if err := artifact.Release(); err != nil {
			s.logger.WithField("path", artifact.Path).Warn("Failed to remove upload package")
		}
	}()

	var remoteID string
	attempt := 0
	operation := func() error {
		attempt++
		id, err := s.uploader.Upload(ctx, artifact.Path, folder)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		remoteID = id
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"model":    modelID,
			"provider": s.Provider(),
			"attempt":  attempt,
			"retry_in": wait.String(),
			"error":    err.Error(),
		}).Warn("Upload attempt failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		uploadErr := appErrors.NewUploadError(fmt.Sprintf("upload to %s failed after %d attempt(s)", s.Provider(), attempt), err).
			WithContext("model", modelID).
			WithContext("provider", s.Provider()).
			WithContext("remote_folder", folder)
		s.logger.LogUpload(s.Provider(), localPath, "", time.Since(start), uploadErr)
		return "", uploadErr
	}

	s.logger.LogUpload(s.Provider(), localPath, remoteID, time.Since(start), nil)
	return remoteID, nil
}

func toSlash(p string) string {
	return strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
}
