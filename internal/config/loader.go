package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appErrors "revit-server-backup/internal/errors"
)

// EnvPrefix is prepended to every environment variable the loader consults
const EnvPrefix = "REVIT_BACKUP"

// ConfigLoader handles loading configuration from file, environment and CLI flags
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	registerDefaults(v)
	return &ConfigLoader{viper: v}
}

func registerDefaults(v *viper.Viper) {
	for _, key := range []string{"source", "target", "db_location", "servername", "rstoollocation", "temp_folder",
		"log_file", "audit_log_file", "upload.remote_folder",
		"upload.drive.credentials_file", "upload.drive.root_folder_id",
		"upload.s3.bucket", "upload.s3.access_key", "upload.s3.secret_key", "upload.s3.endpoint",
		"upload.gcs.bucket", "upload.gcs.credentials_path",
		"upload.azure.account_name", "upload.azure.account_key", "upload.azure.container_name",
		"upload.local.base_path", "upload.compression.algorithm", "upload.encryption.passphrase_env_var"} {
		v.SetDefault(key, "")
	}

	v.SetDefault("freshness_window", DefaultFreshnessWindow)
	v.SetDefault("edit_window", DefaultEditWindow)
	v.SetDefault("parallelism", DefaultParallelism)
	v.SetDefault("snapshot_timeout", 0)
	v.SetDefault("log_format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("upload.enabled", false)
	v.SetDefault("upload.provider", string(UploadProviderDrive))
	v.SetDefault("upload.max_retries", DefaultUploadRetries)
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.compression.enabled", false)
	v.SetDefault("upload.compression.level", 0)
	v.SetDefault("upload.encryption.enabled", false)
}

// AddFlags adds the configuration flags to a cobra command and binds them
func (cl *ConfigLoader) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String("source", "", "root directory of the model server projects")
	flags.String("target", "", "root directory backups are copied into")
	flags.String("db-location", "", "path to the catalog database")
	flags.String("server-name", "", "model server name passed to the snapshot tool")
	flags.String("tool-path", "", "path to the vendor snapshot tool")
	flags.String("temp-folder", "", "staging directory for snapshots")
	flags.Duration("freshness-window", DefaultFreshnessWindow, "maximum age of a verified backup")
	flags.Duration("edit-window", DefaultEditWindow, "how recently a model must be edited to be selected by 'edited'")
	flags.Int("parallelism", DefaultParallelism, "number of models processed at once")
	flags.Duration("snapshot-timeout", 0, "timeout for a single snapshot tool run (0 = none)")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("audit-log", "", "write a JSON audit trail of the run to this file")
	flags.BoolP("verbose", "v", false, "enable verbose output")
	flags.BoolP("quiet", "q", false, "suppress non-error output")

	bindings := map[string]string{
		"source":           "source",
		"target":           "target",
		"db_location":      "db-location",
		"servername":       "server-name",
		"rstoollocation":   "tool-path",
		"temp_folder":      "temp-folder",
		"freshness_window": "freshness-window",
		"edit_window":      "edit-window",
		"parallelism":      "parallelism",
		"snapshot_timeout": "snapshot-timeout",
		"log_file":         "log-file",
		"log_format":       "log-format",
		"audit_log_file":   "audit-log",
		"verbose":          "verbose",
		"quiet":            "quiet",
	}
	for key, flag := range bindings {
		cl.viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// LoadConfig loads configuration from file, environment variables, and CLI flags.
// Precedence is flags, then environment, then file, then defaults.
func (cl *ConfigLoader) LoadConfig(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, appErrors.NewConfigurationError(fmt.Sprintf("config file %s is not readable", configFile), err)
		}
		cl.viper.SetConfigFile(configFile)
	} else {
		cl.viper.SetConfigName("revit-backup")
		cl.viper.SetConfigType("yaml")
		cl.viper.AddConfigPath(".")
		cl.viper.AddConfigPath("$HOME/.config/revit-backup")
	}

	cl.viper.SetEnvPrefix(EnvPrefix)
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cl.viper.AutomaticEnv()

	// A missing config file is fine when everything comes from flags or env
	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, appErrors.NewConfigurationError("error reading config file", err)
		}
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, appErrors.NewConfigurationError("error unmarshaling config", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		appErr := appErrors.NewConfigurationError("configuration validation failed", err)
		appErr.UserMessage = fmt.Sprintf("Invalid configuration: %v", err)
		return nil, appErr
	}

	return &config, nil
}

// GetUsedConfigFile returns the path of the config file that was used
func (cl *ConfigLoader) GetUsedConfigFile() string {
	return cl.viper.ConfigFileUsed()
}

// GenerateSampleConfig returns a configuration with every option at its default
// and placeholder values for the required fields
func GenerateSampleConfig() *Config {
	config := &Config{
		Source:     `D:\RevitServer\Projects`,
		Target:     `\\backup-host\revit`,
		DBLocation: `C:\ProgramData\Autodesk\Revit Server 2023\Projects\Projects.db3`,
		ServerName: "revit-server-01",
		ToolPath:   `C:\Program Files\Autodesk\Revit 2023\RevitServerToolCommand\RevitServerTool.exe`,
		TempFolder: `C:\Temp\revit-backup`,
		Upload: UploadConfig{
			Provider:     UploadProviderDrive,
			RemoteFolder: "RevitBackups",
			MaxRetries:   DefaultUploadRetries,
			Compression:  CompressionConfig{Algorithm: CompressionZstd, Level: 3},
			Encryption:   EncryptionConfig{PassphraseEnvVar: "REVIT_BACKUP_PASSPHRASE"},
		},
	}
	config.SetDefaults()
	return config
}

// GenerateSampleConfigYAML renders the sample configuration as YAML
func GenerateSampleConfigYAML() ([]byte, error) {
	data, err := yaml.Marshal(GenerateSampleConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sample config to YAML: %w", err)
	}
	return data, nil
}

// WriteSampleConfig writes the sample configuration to path, refusing to overwrite
func WriteSampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return appErrors.NewConfigurationError(fmt.Sprintf("config file %s already exists", path), nil)
	}

	data, err := GenerateSampleConfigYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
