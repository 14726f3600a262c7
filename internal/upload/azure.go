package upload

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"revit-server-backup/internal/config"
)

// AzureUploader uploads backups to an Azure Blob Storage container
type AzureUploader struct {
	containerURL  azblob.ContainerURL
	containerName string
}

// NewAzureUploader creates an uploader for the configured storage account
func NewAzureUploader(cfg config.AzureConfig) (*AzureUploader, error) {
	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Azure service URL: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	service := azblob.NewServiceURL(*serviceURL, pipeline)

	return &AzureUploader{
		containerURL:  service.NewContainerURL(cfg.ContainerName),
		containerName: cfg.ContainerName,
	}, nil
}

// Name returns the provider name
func (a *AzureUploader) Name() string {
	return string(config.UploadProviderAzure)
}

// Upload stores localPath as a block blob named remoteFolder/<file name>
func (a *AzureUploader) Upload(ctx context.Context, localPath, remoteFolder string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	blobName := objectKey(remoteFolder, localPath)
	blobURL := a.containerURL.NewBlockBlobURL(blobName)

	_, err = azblob.UploadFileToBlockBlob(ctx, f, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload azure://%s/%s: %w", a.containerName, blobName, err)
	}

	return fmt.Sprintf("azure://%s/%s", a.containerName, blobName), nil
}
