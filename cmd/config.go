package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"revit-server-backup/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate and check configuration",
	}

	var output string
	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a sample configuration file",
		Long: `Generate a configuration template with every option at its default.

Without --output the template is written to stdout. An existing file is never
overwritten.

Examples:
  revit-backup config sample > revit-backup.yaml
  revit-backup config sample --output ~/.config/revit-backup/revit-backup.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				if err := config.WriteSampleConfig(output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", output)
				return nil
			}

			data, err := config.GenerateSampleConfigYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	sampleCmd.Flags().StringVarP(&output, "output", "o", "", "write the sample to this file instead of stdout")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the configured paths and credentials are usable",
		Long: `Load the configuration and check the environment it points at: the source
directory, the catalog database, the snapshot tool, write access to the temp
folder and target, and the encryption passphrase when uploads are encrypted.

The command exits with status 1 when a required component is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newApplication(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.CheckHealth()
			if err != nil {
				return err
			}
			if result.OverallHealth == config.HealthUnhealthy {
				return &exitError{code: ExitError, err: fmt.Errorf("configuration is unhealthy"), reported: true}
			}
			return nil
		},
	}

	configCmd.AddCommand(sampleCmd, checkCmd)
	return configCmd
}
