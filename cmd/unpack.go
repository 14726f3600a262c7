package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"revit-server-backup/internal/config"
	"revit-server-backup/internal/upload"
)

func newUnpackCommand() *cobra.Command {
	var passphraseEnv string

	unpackCmd := &cobra.Command{
		Use:   "unpack <package> [output]",
		Short: "Decrypt and decompress an uploaded backup package",
		Long: `Reverse the packaging applied before upload. Compression and encryption are
detected from the package extensions (.gz, .lz4, .zst, then .enc). The
passphrase of an encrypted package is read from the environment variable
named by --passphrase-env.

Without an output path the model file is written next to the package.

Examples:
  revit-backup unpack Architecture.rvt.zst.enc
  revit-backup unpack Architecture.rvt.gz /restore/Architecture.rvt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			cfg := packagingFromName(filepath.Base(src), passphraseEnv)
			packager := upload.NewPackager(cfg, "")
			if !packager.Enabled() {
				return fmt.Errorf("%s has no packaging extension", src)
			}

			dst := filepath.Join(filepath.Dir(src), packager.UnpackedName(filepath.Base(src)))
			if len(args) == 2 {
				dst = args[1]
			}

			if err := packager.Unpack(src, dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unpacked %s to %s\n", src, dst)
			return nil
		},
	}
	unpackCmd.Flags().StringVar(&passphraseEnv, "passphrase-env", "REVIT_BACKUP_PASSPHRASE",
		"environment variable holding the encryption passphrase")
	return unpackCmd
}

// packagingFromName infers the packaging applied to a package from its file
// name extensions
func packagingFromName(name, passphraseEnv string) config.UploadConfig {
	var cfg config.UploadConfig

	if trimmed := strings.TrimSuffix(name, upload.EncryptionExtension); trimmed != name {
		cfg.Encryption = config.EncryptionConfig{Enabled: true, PassphraseEnvVar: passphraseEnv}
		name = trimmed
	}

	for _, alg := range []config.CompressionAlgorithm{config.CompressionGzip, config.CompressionLZ4, config.CompressionZstd} {
		compressor, err := upload.NewCompressor(alg)
		if err != nil {
			continue
		}
		if strings.HasSuffix(name, compressor.Extension()) {
			cfg.Compression = config.CompressionConfig{Enabled: true, Algorithm: alg}
			break
		}
	}
	return cfg
}
