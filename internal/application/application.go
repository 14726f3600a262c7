package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"revit-server-backup/internal/backup"
	"revit-server-backup/internal/catalog"
	"revit-server-backup/internal/cleanup"
	"revit-server-backup/internal/config"
	"revit-server-backup/internal/display"
	appErrors "revit-server-backup/internal/errors"
	"revit-server-backup/internal/logging"
	"revit-server-backup/internal/selection"
	"revit-server-backup/internal/snapshot"
	"revit-server-backup/internal/transfer"
	"revit-server-backup/internal/upload"
)

// uploadWorkDir is the directory under the temp folder that holds packaged
// artifacts while they are uploaded
const uploadWorkDir = ".upload"

// Options adjust how an Application is assembled
type Options struct {
	// Display configures report rendering. Nil uses the defaults.
	Display *display.DisplayConfig
	// LogOutput receives log lines. Nil uses stderr so reports on stdout
	// stay machine readable.
	LogOutput io.Writer
	// Stderr receives user facing error messages. Nil uses os.Stderr.
	Stderr io.Writer
	// RunID overrides the generated run correlation id
	RunID string
	// Runner replaces the snapshot tool runner
	Runner snapshot.Runner
	// Uploader replaces the uploader built from the upload configuration
	Uploader upload.Uploader
	// Progress receives a progress bar while a run backs up models. Nil
	// draws none.
	Progress io.Writer
}

// Application represents the main application
type Application struct {
	config       *config.Config
	logger       *logging.Logger
	runLogger    *backup.RunLogger
	catalog      *catalog.Catalog
	orchestrator *backup.Orchestrator
	uploader     upload.Uploader
	display      *display.Service
	stderr       io.Writer
}

// NewApplication builds every collaborator described by cfg
func NewApplication(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, appErrors.NewConfigurationError("configuration is required", nil)
	}

	logOutput := opts.LogOutput
	if logOutput == nil {
		logOutput = os.Stderr
	}
	logger, err := logging.NewLogger(logging.Config{
		Level:   logging.ParseLevel(cfg.Quiet, cfg.Verbose, false),
		Output:  logOutput,
		Format:  cfg.LogFormat,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &Application{
		config: cfg,
		logger: logger,
		stderr: opts.Stderr,
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}

	displayConfig := opts.Display
	if displayConfig == nil {
		displayConfig = display.DefaultDisplayConfig()
		displayConfig.QuietMode = cfg.Quiet
		displayConfig.VerboseMode = cfg.Verbose
	}
	app.display = display.NewService(displayConfig)

	if err := app.assemble(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) assemble(ctx context.Context, opts Options) error {
	cfg := app.config

	runLogger, err := backup.NewRunLogger(backup.RunLoggerConfig{
		Logger:       app.logger,
		AuditLogFile: cfg.AuditLogFile,
		RunID:        opts.RunID,
	})
	if err != nil {
		return fmt.Errorf("failed to create run logger: %w", err)
	}
	app.runLogger = runLogger

	app.catalog = catalog.NewCatalog(cfg.DBLocation, cfg.Source, app.logger)

	var snapshots *snapshot.Creator
	if opts.Runner != nil {
		snapshots = snapshot.NewCreatorWithRunner(cfg.ToolPath, cfg.ServerName, cfg.SnapshotTimeout, app.logger, opts.Runner)
	} else {
		snapshots = snapshot.NewCreator(cfg.ToolPath, cfg.ServerName, cfg.SnapshotTimeout, app.logger)
	}

	deps := backup.Dependencies{
		Catalog:   app.catalog,
		Snapshots: snapshots,
		Transfer:  transfer.NewVerifier(),
		Cleaner:   cleanup.NewCleaner(app.logger),
		RunLogger: runLogger,
	}
	// per-stage log lines would tear the bar apart
	if opts.Progress != nil && !app.logger.IsLevelEnabled(logging.LogLevelVerbose) {
		deps.Progress = app.display.NewRunProgress(opts.Progress)
	}

	if cfg.Upload.Enabled {
		uploader := opts.Uploader
		if uploader == nil {
			if uploader, err = upload.NewUploader(ctx, cfg.Upload); err != nil {
				return appErrors.NewUploadError("failed to initialize upload provider", err).
					WithContext("provider", string(cfg.Upload.Provider))
			}
		}
		app.uploader = uploader
		deps.Uploader = upload.NewService(uploader, cfg.Upload, filepath.Join(cfg.TempFolder, uploadWorkDir), app.logger)
	}

	orchestrator, err := backup.NewOrchestrator(*cfg, deps, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	app.orchestrator = orchestrator
	return nil
}

// Policy builds the selection policy named on the command line. The edited
// policy uses the configured edit window.
func (app *Application) Policy(name, id string) (selection.Policy, error) {
	policy, err := selection.Parse(name, app.config.EditWindow, id, app.logger)
	if err != nil {
		return nil, appErrors.NewConfigurationError("invalid selection policy", err)
	}
	return policy, nil
}

// RunBackup runs one backup pass and renders its report. The report is
// returned even when selection fails.
func (app *Application) RunBackup(ctx context.Context, policy selection.Policy) (*backup.RunReport, error) {
	report, err := app.orchestrator.Run(ctx, policy)
	if err != nil {
		app.handleError(err)
		return report, err
	}

	if renderErr := app.display.RenderRunReport(report); renderErr != nil {
		app.logger.WithField("error", renderErr.Error()).Warn("Failed to render run report")
	}
	return report, nil
}

// ListModels renders every catalog model with its last edit time. Returned
// errors have already been reported.
func (app *Application) ListModels(ctx context.Context) error {
	records, errs := app.catalog.Records(ctx)
	if records == nil && len(errs) > 0 {
		app.handleError(errs[0])
		return errs[0]
	}
	if err := app.display.RenderModelRecords(records, errs); err != nil {
		app.handleError(err)
		return err
	}
	return nil
}

// CheckHealth renders the health of the configured environment and reports
// whether it is usable for a run
func (app *Application) CheckHealth() (*config.HealthCheckResult, error) {
	result := config.NewHealthChecker(app.config).RunHealthCheck()
	if err := app.display.RenderHealth(result); err != nil {
		return result, err
	}
	return result, nil
}

// handleError prints a user friendly message and troubleshooting hints
func (app *Application) handleError(err error) {
	fmt.Fprintf(app.stderr, "Error: %s\n", appErrors.FormatUserError(err))

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		app.logger.WithFields(map[string]interface{}{
			"error_type": string(appErr.Type),
			"context":    appErr.Context,
		}).Error("Backup run failed")
		app.provideTroubleshootingHints(appErr)
	}
}

func (app *Application) provideTroubleshootingHints(appErr *appErrors.AppError) {
	var hints []string
	switch appErr.Type {
	case appErrors.ErrorTypeCatalog:
		hints = []string{
			fmt.Sprintf("Check that db_location points at the catalog database (%s)", app.config.DBLocation),
			"Verify the account running the backup can read the model server data directory",
			"If the store is busy, retry when the model server is idle",
		}
	case appErrors.ErrorTypeSnapshot:
		hints = []string{
			fmt.Sprintf("Check that rstoollocation points at the snapshot tool (%s)", app.config.ToolPath),
			fmt.Sprintf("Verify the server name %q is known to the tool", app.config.ServerName),
		}
	case appErrors.ErrorTypeUpload:
		hints = []string{
			"Verify the upload credentials and that the remote folder or bucket exists",
			"Run 'revit-backup config check' to validate the upload section",
		}
	case appErrors.ErrorTypeConfiguration:
		hints = []string{
			"Run 'revit-backup config sample' for a complete configuration template",
			"Every path option can also be set through REVIT_BACKUP_* environment variables",
		}
	}

	if len(hints) == 0 {
		return
	}
	fmt.Fprintf(app.stderr, "\nTroubleshooting hints:\n")
	for _, hint := range hints {
		fmt.Fprintf(app.stderr, "- %s\n", hint)
	}
}

// Logger returns the application logger
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// RunID returns the correlation id of this application's runs
func (app *Application) RunID() string {
	if app.runLogger == nil {
		return ""
	}
	return app.runLogger.RunID()
}

// Close releases the audit log, the uploader and the log file
func (app *Application) Close() error {
	var errs []error
	if app.runLogger != nil {
		errs = append(errs, app.runLogger.Close())
	}
	if closer, ok := app.uploader.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if app.logger != nil {
		errs = append(errs, app.logger.Close())
	}
	return errors.Join(errs...)
}
