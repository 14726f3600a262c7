package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"revit-server-backup/internal/selection"
)

func newBackupCommand(opts *rootOptions) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up models from the model server",
		Long: `Back up the models chosen by a selection policy.

Each selected model is snapshotted with the Revit Server tool into the temp
folder, copied to the target, verified for freshness and integrity and, when
an upload provider is configured, packaged and uploaded. The staged snapshot
is removed whatever the outcome.

The command exits with status 2 when the run completed but at least one model
failed, and with status 1 when the run could not start.

Examples:
  # Every model in the catalog
  revit-backup backup all

  # Models edited in the last 12 hours
  revit-backup backup edited --edit-window 12h

  # One model, identified by its catalog path
  revit-backup backup model "Project A/Architecture.rvt"`,
	}

	backupCmd.AddCommand(
		&cobra.Command{
			Use:   "all",
			Short: "Back up every model in the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBackup(cmd, opts, selection.PolicyAll, "")
			},
		},
		&cobra.Command{
			Use:   "edited",
			Short: "Back up models edited within the edit window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBackup(cmd, opts, selection.PolicyRecentlyEdited, "")
			},
		},
		&cobra.Command{
			Use:   "model <model-id>",
			Short: "Back up a single model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBackup(cmd, opts, selection.PolicySpecific, args[0])
			},
		},
	)
	return backupCmd
}

func runBackup(cmd *cobra.Command, opts *rootOptions, policyName, modelID string) error {
	app, err := opts.newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	policy, err := app.Policy(policyName, modelID)
	if err != nil {
		return err
	}

	report, err := app.RunBackup(cmd.Context(), policy)
	if err != nil {
		return &exitError{code: ExitError, err: err, reported: true}
	}

	if report.HasFailures() {
		return &exitError{
			code:     ExitModelFailures,
			err:      fmt.Errorf("%d of %d models failed", report.Summary.Failed, report.Summary.Total),
			reported: true,
		}
	}
	return nil
}
