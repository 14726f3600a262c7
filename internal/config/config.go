package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultFreshnessWindow is how recent a copied backup must be to pass verification
	DefaultFreshnessWindow = 8 * time.Hour
	// DefaultEditWindow is how recently a model must have been edited to be selected by the edited policy
	DefaultEditWindow = 24 * time.Hour
	// DefaultParallelism processes models one at a time
	DefaultParallelism = 1
)

// Config is the complete configuration of a backup run
type Config struct {
	Source     string `mapstructure:"source" yaml:"source"`
	Target     string `mapstructure:"target" yaml:"target"`
	DBLocation string `mapstructure:"db_location" yaml:"db_location"`
	ServerName string `mapstructure:"servername" yaml:"servername"`
	ToolPath   string `mapstructure:"rstoollocation" yaml:"rstoollocation"`
	TempFolder string `mapstructure:"temp_folder" yaml:"temp_folder"`

	FreshnessWindow time.Duration `mapstructure:"freshness_window" yaml:"freshness_window"`
	EditWindow      time.Duration `mapstructure:"edit_window" yaml:"edit_window"`
	Parallelism     int           `mapstructure:"parallelism" yaml:"parallelism"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout" yaml:"snapshot_timeout"`

	LogFile      string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format"`
	AuditLogFile string `mapstructure:"audit_log_file" yaml:"audit_log_file,omitempty"`
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose"`
	Quiet        bool   `mapstructure:"quiet" yaml:"quiet"`

	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`
}

// UploadProvider identifies a remote storage backend
type UploadProvider string

const (
	UploadProviderDrive UploadProvider = "drive"
	UploadProviderS3    UploadProvider = "s3"
	UploadProviderGCS   UploadProvider = "gcs"
	UploadProviderAzure UploadProvider = "azure"
	UploadProviderLocal UploadProvider = "local"
)

// DefaultUploadRetries is the number of retries for a failed upload
const DefaultUploadRetries = 3

// UploadConfig configures the optional copy of each backup to remote storage
type UploadConfig struct {
	Enabled      bool           `mapstructure:"enabled" yaml:"enabled"`
	Provider     UploadProvider `mapstructure:"provider" yaml:"provider"`
	RemoteFolder string         `mapstructure:"remote_folder" yaml:"remote_folder"`
	MaxRetries   int            `mapstructure:"max_retries" yaml:"max_retries"`

	Drive DriveConfig `mapstructure:"drive" yaml:"drive"`
	S3    S3Config    `mapstructure:"s3" yaml:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs" yaml:"gcs"`
	Azure AzureConfig `mapstructure:"azure" yaml:"azure"`
	Local LocalConfig `mapstructure:"local" yaml:"local"`

	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Encryption  EncryptionConfig  `mapstructure:"encryption" yaml:"encryption"`
}

// DriveConfig holds Google Drive settings
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	RootFolderID    string `mapstructure:"root_folder_id" yaml:"root_folder_id"`
}

// S3Config holds S3 settings
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// GCSConfig holds Google Cloud Storage settings
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

// AzureConfig holds Azure Blob Storage settings
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key,omitempty"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
}

// LocalConfig holds settings for a secondary local or mounted target
type LocalConfig struct {
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// CompressionAlgorithm names a packaging compressor
type CompressionAlgorithm string

const (
	CompressionGzip CompressionAlgorithm = "gzip"
	CompressionLZ4  CompressionAlgorithm = "lz4"
	CompressionZstd CompressionAlgorithm = "zstd"
)

// CompressionConfig defines compression applied before upload
type CompressionConfig struct {
	Enabled   bool                 `mapstructure:"enabled" yaml:"enabled"`
	Algorithm CompressionAlgorithm `mapstructure:"algorithm" yaml:"algorithm"`
	Level     int                  `mapstructure:"level" yaml:"level"`
}

// EncryptionConfig defines encryption applied before upload
type EncryptionConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	PassphraseEnvVar string `mapstructure:"passphrase_env_var" yaml:"passphrase_env_var"`
}

// Validate checks that every required field is present and every option is in range
func (c *Config) Validate() error {
	var errors ValidationErrors

	required := []struct {
		field string
		value string
	}{
		{"source", c.Source},
		{"target", c.Target},
		{"db_location", c.DBLocation},
		{"servername", c.ServerName},
		{"rstoollocation", c.ToolPath},
		{"temp_folder", c.TempFolder},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errors.Add(r.field, "is required", r.value)
		}
	}

	if c.FreshnessWindow <= 0 {
		errors.Add("freshness_window", "must be positive", c.FreshnessWindow)
	}
	if c.EditWindow <= 0 {
		errors.Add("edit_window", "must be positive", c.EditWindow)
	}
	if c.Parallelism < 1 {
		errors.Add("parallelism", "must be at least 1", c.Parallelism)
	}
	if c.SnapshotTimeout < 0 {
		errors.Add("snapshot_timeout", "cannot be negative", c.SnapshotTimeout)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors.Add("log_format", "must be 'text' or 'json'", c.LogFormat)
	}
	if c.Verbose && c.Quiet {
		errors.Add("verbose", "verbose and quiet are mutually exclusive", c.Verbose)
	}

	if err := c.Upload.Validate(); err != nil {
		if uploadErrs, ok := err.(ValidationErrors); ok {
			errors = append(errors, uploadErrs...)
		} else {
			errors.Add("upload", err.Error(), nil)
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults fills in optional settings left at their zero value
func (c *Config) SetDefaults() {
	if c.FreshnessWindow == 0 {
		c.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.EditWindow == 0 {
		c.EditWindow = DefaultEditWindow
	}
	if c.Parallelism == 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	c.Upload.SetDefaults()
}

// Validate validates the UploadConfig
func (uc *UploadConfig) Validate() error {
	var errors ValidationErrors

	if !uc.Enabled {
		return nil
	}

	switch uc.Provider {
	case UploadProviderDrive:
		if uc.Drive.CredentialsFile == "" {
			errors.Add("upload.drive.credentials_file", "credentials file is required for drive uploads", uc.Drive.CredentialsFile)
		}
		if uc.Drive.RootFolderID == "" {
			errors.Add("upload.drive.root_folder_id", "root folder id is required for drive uploads", uc.Drive.RootFolderID)
		}
	case UploadProviderS3:
		if uc.S3.Bucket == "" {
			errors.Add("upload.s3.bucket", "bucket is required for s3 uploads", uc.S3.Bucket)
		}
		if uc.S3.Region == "" {
			errors.Add("upload.s3.region", "region is required for s3 uploads", uc.S3.Region)
		}
	case UploadProviderGCS:
		if uc.GCS.Bucket == "" {
			errors.Add("upload.gcs.bucket", "bucket is required for gcs uploads", uc.GCS.Bucket)
		}
	case UploadProviderAzure:
		if uc.Azure.AccountName == "" {
			errors.Add("upload.azure.account_name", "account name is required for azure uploads", uc.Azure.AccountName)
		}
		if uc.Azure.AccountKey == "" {
			errors.Add("upload.azure.account_key", "account key is required for azure uploads", "")
		}
		if uc.Azure.ContainerName == "" {
			errors.Add("upload.azure.container_name", "container name is required for azure uploads", uc.Azure.ContainerName)
		}
	case UploadProviderLocal:
		if uc.Local.BasePath == "" {
			errors.Add("upload.local.base_path", "base path is required for local uploads", uc.Local.BasePath)
		}
	default:
		errors.Add("upload.provider", "must be one of drive, s3, gcs, azure, local", uc.Provider)
	}

	if uc.Compression.Enabled {
		switch uc.Compression.Algorithm {
		case CompressionGzip:
			if uc.Compression.Level < 1 || uc.Compression.Level > 9 {
				errors.Add("upload.compression.level", "gzip compression level must be between 1 and 9", uc.Compression.Level)
			}
		case CompressionLZ4:
			if uc.Compression.Level < 1 || uc.Compression.Level > 12 {
				errors.Add("upload.compression.level", "lz4 compression level must be between 1 and 12", uc.Compression.Level)
			}
		case CompressionZstd:
			if uc.Compression.Level < 1 || uc.Compression.Level > 22 {
				errors.Add("upload.compression.level", "zstd compression level must be between 1 and 22", uc.Compression.Level)
			}
		default:
			errors.Add("upload.compression.algorithm", "must be one of gzip, lz4, zstd", uc.Compression.Algorithm)
		}
	}

	if uc.MaxRetries < 0 {
		errors.Add("upload.max_retries", "max retries cannot be negative", uc.MaxRetries)
	}

	if uc.Encryption.Enabled && uc.Encryption.PassphraseEnvVar == "" {
		errors.Add("upload.encryption.passphrase_env_var", "passphrase environment variable is required when encryption is enabled", "")
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for the upload configuration
func (uc *UploadConfig) SetDefaults() {
	uc.Provider = UploadProvider(strings.ToLower(string(uc.Provider)))
	if uc.Provider == "" {
		uc.Provider = UploadProviderDrive
	}

	if uc.S3.Region == "" {
		uc.S3.Region = "us-east-1"
	}
	if uc.GCS.CredentialsPath == "" {
		uc.GCS.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	uc.Compression.Algorithm = CompressionAlgorithm(strings.ToLower(string(uc.Compression.Algorithm)))
	if uc.Compression.Enabled && uc.Compression.Algorithm == "" {
		uc.Compression.Algorithm = CompressionGzip
	}
	if uc.Compression.Enabled && uc.Compression.Level == 0 {
		switch uc.Compression.Algorithm {
		case CompressionGzip:
			uc.Compression.Level = 6
		case CompressionLZ4:
			uc.Compression.Level = 1
		case CompressionZstd:
			uc.Compression.Level = 3
		}
	}

	if uc.Encryption.Enabled && uc.Encryption.PassphraseEnvVar == "" {
		uc.Encryption.PassphraseEnvVar = "REVIT_BACKUP_PASSPHRASE"
	}
}

// Passphrase reads the encryption passphrase from the configured environment variable
func (ec *EncryptionConfig) Passphrase() ([]byte, error) {
	if !ec.Enabled {
		return nil, nil
	}
	value := os.Getenv(ec.PassphraseEnvVar)
	if value == "" {
		return nil, fmt.Errorf("encryption passphrase not found in environment variable %s", ec.PassphraseEnvVar)
	}
	return []byte(value), nil
}

// ValidationError describes a single invalid configuration field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields lists the names of the invalid fields
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, v := range e {
		fields = append(fields, v.Field)
	}
	return fields
}
