package upload

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"revit-server-backup/internal/config"
)

// S3Uploader uploads backups to an S3 compatible bucket
type S3Uploader struct {
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Uploader creates an S3 uploader. Static credentials are used when an
// access key is configured, the default AWS credential chain otherwise.
func NewS3Uploader(cfg config.S3Config) (*S3Uploader, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Uploader{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
	}, nil
}

// Name returns the provider name
func (s *S3Uploader) Name() string {
	return string(config.UploadProviderS3)
}

// Upload stores localPath as remoteFolder/<file name>, overwriting any
// previous object with that key
func (s *S3Uploader) Upload(ctx context.Context, localPath, remoteFolder string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	key := objectKey(remoteFolder, localPath)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to s3://%s/%s: %w", s.bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// objectKey builds the slash separated object name for localPath
func objectKey(remoteFolder, localPath string) string {
	name := path.Base(toSlash(localPath))
	folder := toSlash(remoteFolder)
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}
