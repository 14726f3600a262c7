package cmd

import (
	"github.com/spf13/cobra"
)

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the model server catalog",
	}

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every model with its last edit time",
		Long: `List every model in the catalog with the time of its last edit.

Models whose history store cannot be read are reported after the listing and
do not fail the command.

Examples:
  revit-backup catalog list
  revit-backup catalog list --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newApplication(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.ListModels(cmd.Context()); err != nil {
				return &exitError{code: ExitError, err: err, reported: true}
			}
			return nil
		},
	})
	return catalogCmd
}
