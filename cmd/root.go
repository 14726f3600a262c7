package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"revit-server-backup/internal/application"
	"revit-server-backup/internal/config"
	"revit-server-backup/internal/display"
	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/snapshot"
)

// Process exit codes
const (
	ExitOK            = 0
	ExitError         = 1
	ExitModelFailures = 2
)

// exitError carries a process exit code out of a command. Reported errors
// have already been shown to the user.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// rootOptions holds the state shared by every command of one invocation
type rootOptions struct {
	cfgFile       string
	outputFormat  string
	theme         string
	tableStyle    string
	maxTableWidth int
	noColor       bool
	noIcons       bool

	loader *config.ConfigLoader

	// runner replaces the snapshot tool in tests
	runner snapshot.Runner
}

// NewRootCommand builds the complete command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	opts.loader = config.NewConfigLoader()

	rootCmd := &cobra.Command{
		Use:   "revit-backup",
		Short: "Back up Revit Server models to an off-box target",
		Long: `Revit Backup reads the model catalog of a Revit Server, selects the models
that need backing up, asks the Revit Server tool for a local snapshot of each
one, copies it to the backup target, verifies the copy and cleans the staging
area. A failing model never stops the others.

Configuration is read from revit-backup.yaml in the current directory or
$HOME/.config/revit-backup, from REVIT_BACKUP_* environment variables and from
flags, in increasing order of precedence.

Examples:
  # Back up every model edited in the last day
  revit-backup backup edited

  # Back up every model and print the report as JSON
  revit-backup backup all --format json

  # Back up a single model
  revit-backup backup model "Project A/Architecture.rvt"

  # Check the environment before scheduling runs
  revit-backup config check`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is ./revit-backup.yaml or $HOME/.config/revit-backup/revit-backup.yaml)")
	flags.StringVar(&opts.outputFormat, "format", string(display.FormatTable), "output format (table, json, yaml)")
	flags.StringVar(&opts.theme, "theme", string(display.ThemeDark), "color theme (dark, light, plain)")
	flags.StringVar(&opts.tableStyle, "table-style", display.DefaultTableStyle.Name, "table style (default, rounded, compact)")
	flags.IntVar(&opts.maxTableWidth, "max-table-width", 0, "maximum table width (40-300, 0 = terminal width)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable color output")
	flags.BoolVar(&opts.noIcons, "no-icons", false, "disable Unicode icons")
	opts.loader.AddFlags(rootCmd)

	rootCmd.AddCommand(
		newBackupCommand(opts),
		newCatalogCommand(opts),
		newConfigCommand(opts),
		newUnpackCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context) int {
	return execute(ctx, NewRootCommand(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, rootCmd *cobra.Command, args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if !exit.reported {
			fmt.Fprintf(stderr, "Error: %s\n", userMessage(exit.err))
		}
		return exit.code
	}

	fmt.Fprintf(stderr, "Error: %s\n", userMessage(err))
	return ExitError
}

// userMessage prefers the user message of application errors. Anything else
// comes from cobra or the command itself and is shown as is.
func userMessage(err error) string {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErrors.FormatUserError(err)
	}
	return err.Error()
}

// loadConfig loads and validates the configuration for this invocation
func (opts *rootOptions) loadConfig() (*config.Config, error) {
	return opts.loader.LoadConfig(opts.cfgFile)
}

// displayConfig builds the display settings from the output flags
func (opts *rootOptions) displayConfig(cmd *cobra.Command, cfg *config.Config) (*display.DisplayConfig, error) {
	dc := display.DefaultDisplayConfig()
	dc.OutputFormat = opts.outputFormat
	dc.Theme = opts.theme
	dc.TableStyle = opts.tableStyle
	dc.MaxTableWidth = opts.maxTableWidth
	dc.ColorEnabled = !opts.noColor
	dc.UseIcons = !opts.noIcons
	dc.Writer = cmd.OutOrStdout()
	if cfg != nil {
		dc.QuietMode = cfg.Quiet
		dc.VerboseMode = cfg.Verbose
	}

	if err := dc.Validate(); err != nil {
		appErr := appErrors.NewConfigurationError("invalid display options", err)
		appErr.UserMessage = fmt.Sprintf("Invalid display options: %v", err)
		return nil, appErr
	}
	return dc, nil
}

// newApplication loads the configuration and assembles an application for
// cmd. The caller must Close it.
func (opts *rootOptions) newApplication(cmd *cobra.Command) (*application.Application, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	dc, err := opts.displayConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}

	appOpts := application.Options{
		Display: dc,
		Stderr:  cmd.ErrOrStderr(),
		Runner:  opts.runner,
	}
	if showProgress(cmd.ErrOrStderr(), dc) {
		appOpts.Progress = cmd.ErrOrStderr()
	}
	return application.NewApplication(cmd.Context(), cfg, appOpts)
}

// showProgress reports whether a progress bar can be drawn on w without
// mixing into piped output or verbose logs
func showProgress(w io.Writer, dc *display.DisplayConfig) bool {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return false
	}
	return !dc.IsStructured() && !dc.QuietMode && !dc.VerboseMode
}
