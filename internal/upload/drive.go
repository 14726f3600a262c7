package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"revit-server-backup/internal/config"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// driveFiles is the subset of the Drive files API the uploader needs
type driveFiles interface {
	Find(ctx context.Context, query string) (string, bool, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	CreateFile(ctx context.Context, name, parentID string, media io.Reader) (string, error)
	UpdateFile(ctx context.Context, fileID string, media io.Reader) (string, error)
}

// DriveUploader uploads backups into a Google Drive folder tree
type DriveUploader struct {
	files        driveFiles
	rootFolderID string
}

// NewDriveUploader creates a Drive uploader authenticated with the service
// account or OAuth client credentials in cfg.CredentialsFile
func NewDriveUploader(ctx context.Context, cfg config.DriveConfig) (*DriveUploader, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	service, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	return &DriveUploader{
		files:        &driveService{service: service},
		rootFolderID: cfg.RootFolderID,
	}, nil
}

// Name returns the provider name
func (d *DriveUploader) Name() string {
	return string(config.UploadProviderDrive)
}

// Upload places localPath in remoteFolder, replacing the content of a file
// with the same name if one is already there
func (d *DriveUploader) Upload(ctx context.Context, localPath, remoteFolder string) (string, error) {
	folderID, err := d.ensureFolder(ctx, remoteFolder)
	if err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	name := path.Base(strings.ReplaceAll(localPath, "\\", "/"))
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
		escapeQueryValue(name), escapeQueryValue(folderID))

	existingID, found, err := d.files.Find(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if found {
		return d.files.UpdateFile(ctx, existingID, f)
	}
	return d.files.CreateFile(ctx, name, folderID, f)
}

// ensureFolder walks a slash separated folder path below the root folder,
// creating every missing segment, and returns the id of the last one
func (d *DriveUploader) ensureFolder(ctx context.Context, folderPath string) (string, error) {
	parentID := d.rootFolderID
	for _, part := range strings.Split(strings.Trim(folderPath, "/"), "/") {
		if part == "" {
			continue
		}

		query := fmt.Sprintf("mimeType='%s' and trashed=false and name='%s' and '%s' in parents",
			driveFolderMimeType, escapeQueryValue(part), escapeQueryValue(parentID))
		id, found, err := d.files.Find(ctx, query)
		if err != nil {
			return "", fmt.Errorf("failed to look up folder %s: %w", part, err)
		}
		if !found {
			if id, err = d.files.CreateFolder(ctx, part, parentID); err != nil {
				return "", fmt.Errorf("failed to create folder %s: %w", part, err)
			}
		}
		parentID = id
	}
	return parentID, nil
}

// escapeQueryValue escapes single quotes for a Drive query string literal
func escapeQueryValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, "'", `\'`)
}

type driveService struct {
	service *drive.Service
}

func (s *driveService) Find(ctx context.Context, query string) (string, bool, error) {
	list, err := s.service.Files.List().
		Q(query).
		Spaces("drive").
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func (s *driveService) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	folder := &drive.File{Name: name, MimeType: driveFolderMimeType}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	created, err := s.service.Files.Create(folder).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (s *driveService) CreateFile(ctx context.Context, name, parentID string, media io.Reader) (string, error) {
	file := &drive.File{Name: name}
	if parentID != "" {
		file.Parents = []string{parentID}
	}
	created, err := s.service.Files.Create(file).
		Media(media).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (s *driveService) UpdateFile(ctx context.Context, fileID string, media io.Reader) (string, error) {
	updated, err := s.service.Files.Update(fileID, &drive.File{}).
		Media(media).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return updated.Id, nil
}
